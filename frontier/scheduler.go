package frontier

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-products/parser"
)

// Options configures a Scheduler.
type Options struct {
	// ProductCardSelectors locate product cards on detail pages. They are
	// queried together so cards come back in document order.
	ProductCardSelectors []string
	// ProductLinkSelectors locate the anchor inside a card, tried in order.
	ProductLinkSelectors []string
	// Observer receives decision and record counts. May be nil.
	Observer Observer
}

// HandlerFunc processes one fetched page.
type HandlerFunc func(page *Page)

// Stats is a snapshot of a run's frontier activity.
type Stats struct {
	Decisions      map[string]int
	EnqueuedByRole map[string]int
	Claimed        int
	BudgetUsed     int
	BudgetMax      int
	Records        int
	PageErrors     int
}

// Scheduler owns the frontier state of one crawl run: the visited set and
// page budget, plus the routing of fetched pages to their handlers. It is
// safe for concurrent use by the engine's workers.
type Scheduler struct {
	classifier    *Classifier
	visited       *VisitedSet
	budget        *Budget
	engine        Enqueuer
	sink          RecordSink
	observer      Observer
	cardSelector  string
	linkSelectors []string
	legacyRouting bool

	mu             sync.Mutex
	decisions      map[Decision]int
	enqueuedByRole map[Role]int
	records        int
	pageErrors     int
}

// NewScheduler builds a scheduler with a fresh visited set.
//
// Links matching a detail pattern are routed to the detail handler, links
// matching only a listing pattern to the listing handler. When no detail
// pattern is configured, listing matches go to the detail handler instead so
// their product cards are still extracted.
func NewScheduler(classifier *Classifier, budget *Budget, engine Enqueuer, sink RecordSink, opts Options) *Scheduler {
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	s := &Scheduler{
		classifier:     classifier,
		visited:        NewVisitedSet(),
		budget:         budget,
		engine:         engine,
		sink:           sink,
		observer:       observer,
		cardSelector:   strings.Join(opts.ProductCardSelectors, ", "),
		linkSelectors:  opts.ProductLinkSelectors,
		legacyRouting:  !classifier.HasDetailPatterns(),
		decisions:      make(map[Decision]int),
		enqueuedByRole: make(map[Role]int),
	}
	if s.legacyRouting {
		slog.Warn("no detail patterns configured, routing listing matches to the detail handler")
	}
	if s.cardSelector == "" {
		slog.Warn("no product card selectors configured, detail pages will yield no records")
	}
	return s
}

// Visited exposes the run's visited set.
func (s *Scheduler) Visited() *VisitedSet {
	return s.visited
}

// Seed enqueues the start URLs as listing pages. Seeds skip classification
// but not deduplication or the page budget. It returns the number enqueued.
func (s *Scheduler) Seed(urls []string) int {
	enqueued := 0
	for _, raw := range urls {
		normalized, ok := parser.NormalizeURL(raw, raw)
		if !ok {
			slog.Warn("skipping invalid start url", slog.String("url", raw))
			s.record(DroppedInvalid, RoleListing)
			continue
		}
		if s.enqueue(normalized, RoleListing) == Enqueued {
			enqueued++
		}
	}
	return enqueued
}

// Admit offers a link found on a page to the frontier. The link is
// normalized against base, routed by its pattern match, and enqueued if it
// was never claimed before and the budget allows.
func (s *Scheduler) Admit(link, base string) Decision {
	normalized, ok := parser.NormalizeURL(link, base)
	if !ok {
		return s.record(DroppedInvalid, RoleUnclassified)
	}
	role := s.route(normalized)
	if role == RoleUnclassified {
		return s.record(DroppedUnclassified, role)
	}
	return s.enqueue(normalized, role)
}

// HandlerFor returns the handler for pages fetched under role, or nil.
func (s *Scheduler) HandlerFor(role Role) HandlerFunc {
	switch role {
	case RoleListing:
		return s.handleListing
	case RoleDetail:
		return s.handleDetail
	default:
		return nil
	}
}

// HandlePage dispatches a fetched page to the handler for its role.
func (s *Scheduler) HandlePage(role Role, page *Page) {
	if page == nil {
		return
	}
	handler := s.HandlerFor(role)
	if handler == nil {
		slog.Warn("no handler for page", slog.String("url", page.URL), slog.String("role", role.String()))
		return
	}
	handler(page)
}

// OnFetchError records a page the engine failed to fetch or render. The page
// contributes no links or records; the run continues.
func (s *Scheduler) OnFetchError(url string, role Role, err error) {
	s.mu.Lock()
	s.pageErrors++
	s.mu.Unlock()
	slog.Error("page fetch failed",
		slog.String("url", url),
		slog.String("role", role.String()),
		slog.Any("error", err),
	)
}

// Stats returns a snapshot of the run's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	decisions := make(map[string]int, len(s.decisions))
	for d, n := range s.decisions {
		decisions[d.String()] = n
	}
	byRole := make(map[string]int, len(s.enqueuedByRole))
	for r, n := range s.enqueuedByRole {
		byRole[r.String()] = n
	}
	return Stats{
		Decisions:      decisions,
		EnqueuedByRole: byRole,
		Claimed:        s.visited.Len(),
		BudgetUsed:     s.budget.Used(),
		BudgetMax:      s.budget.Max(),
		Records:        s.records,
		PageErrors:     s.pageErrors,
	}
}

func (s *Scheduler) handleListing(page *Page) {
	base := page.base()
	enqueued := 0
	for _, link := range page.Links {
		if s.Admit(link, base) == Enqueued {
			enqueued++
		}
	}
	slog.Debug("listing page expanded",
		slog.String("url", page.URL),
		slog.Int("links", len(page.Links)),
		slog.Int("enqueued", enqueued),
	)
}

func (s *Scheduler) handleDetail(page *Page) {
	records := ExtractProducts(page, s.cardSelector, s.linkSelectors)
	if len(records) == 0 {
		slog.Debug("no product cards on page", slog.String("url", page.URL))
		return
	}

	s.mu.Lock()
	s.records += len(records)
	s.mu.Unlock()
	s.observer.ObserveRecords(len(records))

	if err := s.sink.Process(records...); err != nil {
		slog.Error("record sink rejected records",
			slog.String("url", page.URL),
			slog.Int("records", len(records)),
			slog.Any("error", err),
		)
	}
}

func (s *Scheduler) route(url string) Role {
	m := s.classifier.Classify(url)
	switch {
	case m.Detail:
		return RoleDetail
	case m.Listing && s.legacyRouting:
		return RoleDetail
	case m.Listing:
		return RoleListing
	default:
		return RoleUnclassified
	}
}

// enqueue claims url, takes a budget slot and hands it to the engine. The
// exhausted check comes first so a saturated run stops growing the visited
// set.
func (s *Scheduler) enqueue(url string, role Role) Decision {
	if s.budget.Exhausted() {
		return s.record(DroppedBudget, role)
	}
	if !s.visited.TryClaim(url) {
		return s.record(DroppedDuplicate, role)
	}
	if !s.budget.TryReserve() {
		return s.record(DroppedBudget, role)
	}
	s.observer.ObserveBudget(s.budget.Used())

	if err := s.engine.Enqueue(url, role); err != nil {
		slog.Debug("engine refused url",
			slog.String("url", url),
			slog.String("role", role.String()),
			slog.Any("error", err),
		)
		return s.record(DroppedEngine, role)
	}
	return s.record(Enqueued, role)
}

func (s *Scheduler) record(d Decision, role Role) Decision {
	s.mu.Lock()
	s.decisions[d]++
	if d == Enqueued {
		s.enqueuedByRole[role]++
	}
	s.mu.Unlock()
	s.observer.ObserveDecision(d, role)
	return d
}
