package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Config holds crawler configuration.
type Config struct {
	StartURLs            []string `mapstructure:"start_urls" yaml:"start_urls"`
	ListingURLPatterns   []string `mapstructure:"listing_url_patterns" yaml:"listing_url_patterns"`
	DetailURLPatterns    []string `mapstructure:"detail_url_patterns" yaml:"detail_url_patterns"`
	ProductCardSelectors []string `mapstructure:"product_card_selectors" yaml:"product_card_selectors"`
	ProductLinkSelectors []string `mapstructure:"product_link_selectors" yaml:"product_link_selectors"`
	PaginationSelectors  []string `mapstructure:"pagination_selectors" yaml:"pagination_selectors"`
	MaxPages             int      `mapstructure:"max_pages" yaml:"max_pages"`

	Parallelism      int           `mapstructure:"parallelism" yaml:"parallelism"`
	Delay            time.Duration `mapstructure:"delay" yaml:"delay"`
	RandomDelay      time.Duration `mapstructure:"random_delay" yaml:"random_delay"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `mapstructure:"retry_backoff_max" yaml:"retry_backoff_max"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
	RespectRobotsTxt bool          `mapstructure:"respect_robots_txt" yaml:"respect_robots_txt"`

	OutputFile         string `mapstructure:"output_file" yaml:"output_file"`
	OutputFormat       string `mapstructure:"output_format" yaml:"output_format"` // csv, json, dual, or sqlite
	PipelineBufferSize int    `mapstructure:"pipeline_buffer_size" yaml:"pipeline_buffer_size"`
	BatchSize          int    `mapstructure:"batch_size" yaml:"batch_size"`
	ClassifyCacheSize  int    `mapstructure:"classify_cache_size" yaml:"classify_cache_size"`
	MetricsAddr        string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	Verbose            bool   `mapstructure:"verbose" yaml:"verbose"`
}

// DefaultConfig returns conservative defaults. Start URLs and patterns have
// no sensible default and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		MaxPages:           1000,
		Parallelism:        10,
		Delay:              0,
		RandomDelay:        0,
		Timeout:            30 * time.Second,
		MaxRetries:         0,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt:   false,
		OutputFile:         "output/products.csv",
		OutputFormat:       "csv",
		PipelineBufferSize: 512,
		BatchSize:          64,
		ClassifyCacheSize:  10000,
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent. It compiles the
// URL patterns so a bad pattern fails before any crawling starts.
func (c *Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return ErrNoStartURLs
	}
	for _, raw := range c.StartURLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidStartURL, raw, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidStartURL, raw)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%w %q: missing host", ErrInvalidStartURL, raw)
		}
	}

	if _, _, err := c.CompilePatterns(); err != nil {
		return err
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.ClassifyCacheSize < 0 {
		return fmt.Errorf("classify cache size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// CompilePatterns compiles the listing and detail pattern sets.
func (c *Config) CompilePatterns() (listing, detail []*regexp.Regexp, err error) {
	listing, err = compileAll("listing", c.ListingURLPatterns)
	if err != nil {
		return nil, nil, err
	}
	detail, err = compileAll("detail", c.DetailURLPatterns)
	if err != nil {
		return nil, nil, err
	}
	return listing, detail, nil
}

func compileAll(kind string, patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s pattern %q: %v", ErrInvalidPattern, kind, pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
