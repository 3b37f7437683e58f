package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-products/models"
)

// ValidateRecord ensures the extractor captured enough context to trace the
// record back to its page. A nil link is valid.
func ValidateRecord(r *models.ProductRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.SourceURL) == "" {
		return fmt.Errorf("record missing source url")
	}
	if r.Position < 0 {
		return fmt.Errorf("record position %d is negative for %s", r.Position, r.SourceURL)
	}
	if r.ScrapedAt.IsZero() {
		return fmt.Errorf("record missing scrape time for %s", r.SourceURL)
	}
	return nil
}

// NormalizeRecordLink trims the link and drops it when nothing is left.
func NormalizeRecordLink(r *models.ProductRecord) {
	if r == nil || r.Link == nil {
		return
	}
	trimmed := strings.TrimSpace(*r.Link)
	if trimmed == "" {
		r.Link = nil
		return
	}
	r.Link = &trimmed
}
