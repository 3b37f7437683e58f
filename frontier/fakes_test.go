package frontier

import (
	"errors"
	"sync"

	"github.com/aluiziolira/go-scrape-products/models"
)

type enqueued struct {
	url  string
	role Role
}

type fakeEngine struct {
	mu     sync.Mutex
	queued []enqueued
	refuse map[string]bool
}

func (e *fakeEngine) Enqueue(url string, role Role) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refuse[url] {
		return errors.New("refused")
	}
	e.queued = append(e.queued, enqueued{url: url, role: role})
	return nil
}

func (e *fakeEngine) all() []enqueued {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]enqueued, len(e.queued))
	copy(out, e.queued)
	return out
}

type fakeSink struct {
	mu      sync.Mutex
	records []*models.ProductRecord
	err     error
}

func (s *fakeSink) Process(records ...*models.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeDocument serves cards keyed by the exact selector string.
type fakeDocument struct {
	cards map[string][]Card
}

func (d *fakeDocument) ProductCards(selector string) []Card {
	return d.cards[selector]
}

// fakeCard maps link selectors to hrefs.
type fakeCard map[string]string

func (c fakeCard) FirstAnchorHref(selector string) (string, bool) {
	href, ok := c[selector]
	return href, ok
}

type panickyCard struct{}

func (panickyCard) FirstAnchorHref(string) (string, bool) {
	panic("detached node")
}
