package config

import "errors"

var (
	// ErrNoStartURLs is returned when no seed URLs are configured.
	ErrNoStartURLs = errors.New("at least one start URL is required")
	// ErrInvalidStartURL is returned when a seed is not an absolute http(s) URL.
	ErrInvalidStartURL = errors.New("invalid start URL")
	// ErrInvalidPattern is returned when a listing or detail pattern does not compile.
	ErrInvalidPattern = errors.New("invalid URL pattern")
	// ErrConfigNotFound is returned when an explicit config file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
