package frontier

import "github.com/aluiziolira/go-scrape-products/models"

// Page is a fetched document handed over by the crawl engine.
type Page struct {
	// URL is the page's resolved URL after redirects.
	URL string
	// BaseURL is the document's <base href>, if any. Links resolve against
	// it in preference to URL.
	BaseURL string
	// Links holds the raw href values the engine enumerated on the page.
	Links []string
	// Document gives DOM access for product extraction. May be nil.
	Document Document
}

func (p *Page) base() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return p.URL
}

// Document is the engine's DOM query capability for one page.
type Document interface {
	ProductCards(selector string) []Card
}

// Card is one product card element.
type Card interface {
	// FirstAnchorHref returns the href of the first anchor matching
	// linkSelector within the card.
	FirstAnchorHref(linkSelector string) (string, bool)
}

// Enqueuer schedules a URL for fetching under a handler label.
type Enqueuer interface {
	Enqueue(url string, role Role) error
}

// RecordSink receives extracted product records.
type RecordSink interface {
	Process(records ...*models.ProductRecord) error
}

// Observer is notified of frontier activity, typically to feed metrics.
type Observer interface {
	ObserveDecision(decision Decision, role Role)
	ObserveRecords(n int)
	ObserveBudget(used int)
}

type noopObserver struct{}

func (noopObserver) ObserveDecision(Decision, Role) {}
func (noopObserver) ObserveRecords(int)             {}
func (noopObserver) ObserveBudget(int)              {}
