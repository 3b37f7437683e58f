package parser

import (
	"net/url"
	"strings"

	whatwg "github.com/nlnwa/whatwg-url/url"
)

var urlParser = whatwg.NewParser(whatwg.WithPercentEncodeSinglePercentSign())

// NormalizeURL resolves link against base and returns its canonical absolute
// form without fragment. The second result is false when the link cannot be
// crawled: malformed input, a non-HTTP scheme, or an unusable base. Callers
// must treat a false result as "never matches, never visited".
func NormalizeURL(link, base string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}
	if !schemeWellFormed(link) {
		return "", false
	}

	resolved, err := urlParser.ParseRef(strings.TrimSpace(base), link)
	if err != nil {
		// An absolute link does not need the base.
		if resolved, err = urlParser.Parse(link); err != nil {
			return "", false
		}
	}
	href, _, _ := strings.Cut(resolved.Href(true), "#")

	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}
	return href, true
}

// schemeWellFormed rejects links whose text before the first ':' cannot be a
// scheme although no '/', '?' or '#' precedes the colon, like "::junk::".
// The WHATWG parser would resolve those as a path relative to base. Everything
// else is left to the parser, which also strips tabs and newlines and encodes
// stray '%' signs.
func schemeWellFormed(link string) bool {
	link = strings.NewReplacer("\t", "", "\n", "", "\r", "").Replace(link)
	end := strings.IndexAny(link, ":/?#")
	if end < 0 || link[end] != ':' {
		return true
	}
	scheme := link[:end]
	if scheme == "" {
		return false
	}
	for i, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
