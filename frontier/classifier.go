package frontier

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Match reports which pattern sets a URL satisfies. Both may be true.
type Match struct {
	Listing bool
	Detail  bool
}

// Classifier tests normalized URLs against precompiled listing and detail
// patterns. Results are memoized; the memo never changes an answer.
type Classifier struct {
	listing []*regexp.Regexp
	detail  []*regexp.Regexp
	cache   *lru.Cache[string, Match]
}

// NewClassifier builds a classifier over compiled pattern sets. A cacheSize
// of zero disables memoization.
func NewClassifier(listing, detail []*regexp.Regexp, cacheSize int) (*Classifier, error) {
	c := &Classifier{
		listing: listing,
		detail:  detail,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, Match](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create classify cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Classify reports listing and detail membership for url.
func (c *Classifier) Classify(url string) Match {
	if url == "" {
		return Match{}
	}
	if c.cache != nil {
		if m, ok := c.cache.Get(url); ok {
			return m
		}
	}
	m := Match{
		Listing: matchAny(c.listing, url),
		Detail:  matchAny(c.detail, url),
	}
	if c.cache != nil {
		c.cache.Add(url, m)
	}
	return m
}

// IsListing reports whether url matches any listing pattern.
func (c *Classifier) IsListing(url string) bool {
	return c.Classify(url).Listing
}

// IsDetail reports whether url matches any detail pattern.
func (c *Classifier) IsDetail(url string) bool {
	return c.Classify(url).Detail
}

// HasDetailPatterns reports whether any detail pattern is configured.
func (c *Classifier) HasDetailPatterns() bool {
	return len(c.detail) > 0
}

func matchAny(patterns []*regexp.Regexp, url string) bool {
	for _, re := range patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}
