package frontier

import (
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
)

// DefaultLinkSelector locates a product card's anchor when no product link
// selector is configured.
const DefaultLinkSelector = "a[href]"

// ExtractProducts returns one record per product card on page, in document
// order. A card without a usable anchor, or one that fails while being read,
// yields a record with a nil link. No cards means no records.
func ExtractProducts(page *Page, cardSelector string, linkSelectors []string) []*models.ProductRecord {
	records := []*models.ProductRecord{}
	if page == nil || page.Document == nil || cardSelector == "" {
		return records
	}
	if len(linkSelectors) == 0 {
		linkSelectors = []string{DefaultLinkSelector}
	}

	scrapedAt := time.Now()
	for i, card := range page.Document.ProductCards(cardSelector) {
		records = append(records, &models.ProductRecord{
			Link:      cardLink(card, linkSelectors, page),
			SourceURL: page.URL,
			Position:  i,
			ScrapedAt: scrapedAt,
		})
	}
	return records
}

func cardLink(card Card, linkSelectors []string, page *Page) (link *string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("product card extraction failed",
				slog.String("url", page.URL),
				slog.Any("panic", r),
			)
			link = nil
		}
	}()

	for _, selector := range linkSelectors {
		href, ok := card.FirstAnchorHref(selector)
		if !ok {
			continue
		}
		normalized, ok := parser.NormalizeURL(href, page.base())
		if !ok {
			return nil
		}
		return &normalized
	}
	return nil
}
