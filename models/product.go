// Package models defines data structures for the crawler.
package models

import "time"

// ProductRecord is one product card found on a detail page.
// Link is nil when the card had no usable anchor.
type ProductRecord struct {
	Link      *string   `csv:"link" json:"link"`
	SourceURL string    `csv:"source_url" json:"source_url"`
	Position  int       `csv:"position" json:"position"`
	ScrapedAt time.Time `csv:"scraped_at" json:"scraped_at"`
}

// LinkOrEmpty returns the record link, or "" for a null link.
func (r *ProductRecord) LinkOrEmpty() string {
	if r == nil || r.Link == nil {
		return ""
	}
	return *r.Link
}

// CrawlResult holds the overall result of a crawl run
type CrawlResult struct {
	StartTime      time.Time
	EndTime        time.Time
	RecordCount    int
	ErrorCount     int
	FailedURLs     []string
	ErrorsByType   map[string]int
	RetryCount     int
	RequestCount   int
	PageCount      int
	SeedsEnqueued  int
	ClaimedURLs    int
	BudgetUsed     int
	BudgetMax      int
	Decisions      map[string]int
	EnqueuedByRole map[string]int
}
