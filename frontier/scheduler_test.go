package frontier

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func newTestScheduler(t *testing.T, maxPages int, detailPatterns ...string) (*Scheduler, *fakeEngine, *fakeSink) {
	t.Helper()
	classifier, err := NewClassifier(
		mustCompile(`^https://www.ajio.com/.*/c/[0-9]+$`),
		mustCompile(detailPatterns...),
		64,
	)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	engine := &fakeEngine{refuse: map[string]bool{}}
	sink := &fakeSink{}
	s := NewScheduler(classifier, NewBudget(maxPages), engine, sink, Options{
		ProductCardSelectors: []string{"div.item"},
	})
	return s, engine, sink
}

func TestSchedulerListingLinkEnqueued(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 10, `/p/[0-9]+$`)

	got := s.Admit("/shop/sale/c/123", "https://www.ajio.com/")
	if got != Enqueued {
		t.Fatalf("decision = %v, want enqueued", got)
	}
	queued := engine.all()
	if len(queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(queued))
	}
	if queued[0].url != "https://www.ajio.com/shop/sale/c/123" || queued[0].role != RoleListing {
		t.Fatalf("queued %+v, want listing https://www.ajio.com/shop/sale/c/123", queued[0])
	}
}

func TestSchedulerDuplicateAcrossPages(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 10, `/p/[0-9]+$`)

	pageX := &Page{URL: "https://www.ajio.com/men/c/1", Links: []string{"/shop/sale/c/123"}}
	pageY := &Page{URL: "https://www.ajio.com/women/c/2", Links: []string{"https://www.ajio.com/shop/sale/c/123#top"}}

	s.HandlePage(RoleListing, pageX)
	s.HandlePage(RoleListing, pageY)

	if got := len(engine.all()); got != 1 {
		t.Fatalf("enqueues = %d, want 1", got)
	}
	if got := s.Stats().Decisions[DroppedDuplicate.String()]; got != 1 {
		t.Fatalf("duplicate decisions = %d, want 1", got)
	}
}

func TestSchedulerZeroBudgetBlocksSeeds(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 0, `/p/`)

	if n := s.Seed([]string{"https://www.ajio.com/shop/sale/c/123"}); n != 0 {
		t.Fatalf("seeded = %d, want 0", n)
	}
	if got := s.Admit("/men/c/5", "https://www.ajio.com/"); got != DroppedBudget {
		t.Fatalf("decision = %v, want budget", got)
	}
	if len(engine.all()) != 0 {
		t.Fatalf("nothing should be enqueued")
	}
	if s.Visited().Len() != 0 {
		t.Fatalf("a saturated run should not claim urls")
	}
}

func TestSchedulerInvalidLinkNeverClaimed(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 10, `/p/`)

	if got := s.Admit("javascript:void(0)", "https://www.ajio.com/"); got != DroppedInvalid {
		t.Fatalf("decision = %v, want invalid", got)
	}
	if s.Visited().Len() != 0 || len(engine.all()) != 0 {
		t.Fatalf("invalid link must not be claimed or enqueued")
	}
}

func TestSchedulerBudgetMonotonic(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 3, `/p/[0-9]+$`)

	for i := 0; i < 3; i++ {
		if got := s.Admit(fmt.Sprintf("/men/c/%d", i), "https://www.ajio.com/"); got != Enqueued {
			t.Fatalf("admit %d = %v, want enqueued", i, got)
		}
	}
	for i := 3; i < 8; i++ {
		if got := s.Admit(fmt.Sprintf("/men/c/%d", i), "https://www.ajio.com/"); got != DroppedBudget {
			t.Fatalf("admit %d = %v, want budget", i, got)
		}
	}
	// A fresh detail link is suppressed too.
	if got := s.Admit("/shirt/p/1", "https://www.ajio.com/"); got != DroppedBudget {
		t.Fatalf("detail admit = %v, want budget", got)
	}
	if got := len(engine.all()); got != 3 {
		t.Fatalf("enqueues = %d, want 3", got)
	}
	if st := s.Stats(); st.BudgetUsed != 3 || st.BudgetMax != 3 {
		t.Fatalf("budget used/max = %d/%d, want 3/3", st.BudgetUsed, st.BudgetMax)
	}
}

func TestSchedulerSeedsCountAgainstBudget(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 2, `/p/`)

	seeded := s.Seed([]string{
		"https://www.ajio.com/men/c/1",
		"https://www.ajio.com/men/c/1",
		"not a url",
		"https://www.ajio.com/about",
		"https://www.ajio.com/women/c/2",
	})
	if seeded != 2 {
		t.Fatalf("seeded = %d, want 2", seeded)
	}
	for _, q := range engine.all() {
		if q.role != RoleListing {
			t.Fatalf("seed %s enqueued as %v, want listing", q.url, q.role)
		}
	}
	if got := s.Admit("/kids/c/3", "https://www.ajio.com/"); got != DroppedBudget {
		t.Fatalf("decision after seeds = %v, want budget", got)
	}
}

func TestSchedulerRouting(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 10, `/p/[0-9]+`)

	page := &Page{
		URL: "https://www.ajio.com/men/c/1",
		Links: []string{
			"/men/c/2",           // listing
			"/shirt/p/77",        // detail
			"/sale/p/88/c/9",     // both: detail wins
			"/help",              // neither
			"mailto:x@ajio.test", // invalid
		},
	}
	s.HandlePage(RoleListing, page)

	roles := map[string]Role{}
	for _, q := range engine.all() {
		roles[q.url] = q.role
	}
	want := map[string]Role{
		"https://www.ajio.com/men/c/2":       RoleListing,
		"https://www.ajio.com/shirt/p/77":    RoleDetail,
		"https://www.ajio.com/sale/p/88/c/9": RoleDetail,
	}
	if len(roles) != len(want) {
		t.Fatalf("enqueued %v, want %v", roles, want)
	}
	for url, role := range want {
		if roles[url] != role {
			t.Fatalf("%s routed to %v, want %v", url, roles[url], role)
		}
	}

	stats := s.Stats()
	if stats.Decisions[DroppedUnclassified.String()] != 1 || stats.Decisions[DroppedInvalid.String()] != 1 {
		t.Fatalf("decisions = %v", stats.Decisions)
	}
	if stats.EnqueuedByRole["listing"] != 1 || stats.EnqueuedByRole["detail"] != 2 {
		t.Fatalf("enqueued by role = %v", stats.EnqueuedByRole)
	}
}

func TestSchedulerLegacyRoutingWithoutDetailPatterns(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 10)

	if got := s.Admit("/shop/sale/c/123", "https://www.ajio.com/"); got != Enqueued {
		t.Fatalf("decision = %v, want enqueued", got)
	}
	if q := engine.all(); len(q) != 1 || q[0].role != RoleDetail {
		t.Fatalf("listing match should be routed to detail handler, got %+v", q)
	}
}

func TestSchedulerDetailPageExtractsWithoutExpanding(t *testing.T) {
	s, engine, sink := newTestScheduler(t, 10, `/p/[0-9]+`)

	page := &Page{
		URL:   "https://www.ajio.com/shirt/p/77",
		Links: []string{"/men/c/2", "/shirt/p/78"},
		Document: &fakeDocument{cards: map[string][]Card{
			"div.item": {fakeCard{DefaultLinkSelector: "/shirt/p/77"}, fakeCard{}},
		}},
	}
	s.HandlePage(RoleDetail, page)

	if len(engine.all()) != 0 {
		t.Fatalf("detail pages must not expand links")
	}
	if sink.count() != 2 {
		t.Fatalf("records = %d, want 2", sink.count())
	}
	if s.Stats().Records != 2 {
		t.Fatalf("stats records = %d, want 2", s.Stats().Records)
	}
}

func TestSchedulerDetailPageWithoutCards(t *testing.T) {
	s, _, sink := newTestScheduler(t, 10, `/p/`)

	s.HandlePage(RoleDetail, &Page{
		URL:      "https://www.ajio.com/shirt/p/77",
		Document: &fakeDocument{cards: map[string][]Card{}},
	})
	if sink.count() != 0 {
		t.Fatalf("records = %d, want 0", sink.count())
	}
}

func TestSchedulerSinkErrorDoesNotPanic(t *testing.T) {
	s, _, sink := newTestScheduler(t, 10, `/p/`)
	sink.err = errors.New("closed")

	s.HandlePage(RoleDetail, &Page{
		URL: "https://www.ajio.com/shirt/p/77",
		Document: &fakeDocument{cards: map[string][]Card{
			"div.item": {fakeCard{DefaultLinkSelector: "/shirt/p/77"}},
		}},
	})
	if s.Stats().Records != 1 {
		t.Fatalf("extracted records should still be counted")
	}
}

func TestSchedulerEngineRefusal(t *testing.T) {
	s, engine, _ := newTestScheduler(t, 10, `/p/`)
	engine.refuse["https://www.ajio.com/men/c/1"] = true

	if got := s.Admit("/men/c/1", "https://www.ajio.com/"); got != DroppedEngine {
		t.Fatalf("decision = %v, want engine", got)
	}
	// The URL stays claimed: it is never offered again.
	if got := s.Admit("/men/c/1", "https://www.ajio.com/"); got != DroppedDuplicate {
		t.Fatalf("second decision = %v, want duplicate", got)
	}
}

func TestSchedulerFetchErrorAndUnknownRole(t *testing.T) {
	s, engine, sink := newTestScheduler(t, 10, `/p/`)

	s.OnFetchError("https://www.ajio.com/men/c/1", RoleListing, errors.New("timeout"))
	s.HandlePage(RoleUnclassified, &Page{URL: "https://www.ajio.com/x", Links: []string{"/men/c/2"}})
	s.HandlePage(RoleListing, nil)

	if s.Stats().PageErrors != 1 {
		t.Fatalf("page errors = %d, want 1", s.Stats().PageErrors)
	}
	if len(engine.all()) != 0 || sink.count() != 0 {
		t.Fatalf("unroutable pages must produce nothing")
	}
	if s.HandlerFor(RoleUnclassified) != nil {
		t.Fatalf("unclassified role should have no handler")
	}
}

func TestSchedulerConcurrentDiscovery(t *testing.T) {
	const workers = 16
	s, engine, _ := newTestScheduler(t, 25, `/p/[0-9]+$`)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			links := make([]string, 0, 40)
			for i := 0; i < 40; i++ {
				links = append(links, fmt.Sprintf("/men/c/%d", i))
			}
			s.HandlePage(RoleListing, &Page{URL: fmt.Sprintf("https://www.ajio.com/src/c/%d", 1000+w), Links: links})
		}(w)
	}
	wg.Wait()

	queued := engine.all()
	if len(queued) != 25 {
		t.Fatalf("enqueues = %d, want budget of 25", len(queued))
	}
	seen := map[string]bool{}
	for _, q := range queued {
		if seen[q.url] {
			t.Fatalf("%s enqueued twice", q.url)
		}
		seen[q.url] = true
	}
}

func TestRoleLabels(t *testing.T) {
	for _, role := range []Role{RoleListing, RoleDetail, RoleUnclassified} {
		if got := ParseRole(role.String()); got != role {
			t.Fatalf("ParseRole(%q) = %v, want %v", role.String(), got, role)
		}
	}
	if ParseRole("bogus") != RoleUnclassified {
		t.Fatalf("unknown label should parse as unclassified")
	}
}

func TestNewSchedulerWarnsWithoutCardSelectors(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(previous)

	classifier, err := NewClassifier(nil, mustCompile(`/p/[0-9]+$`), 8)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	NewScheduler(classifier, NewBudget(1), &fakeEngine{refuse: map[string]bool{}}, &fakeSink{}, Options{
		ProductCardSelectors: []string{"div.item"},
	})
	if strings.Contains(logs.String(), "no product card selectors") {
		t.Fatalf("unexpected warning with card selectors set:\n%s", logs.String())
	}

	NewScheduler(classifier, NewBudget(1), &fakeEngine{refuse: map[string]bool{}}, &fakeSink{}, Options{})
	if !strings.Contains(logs.String(), "no product card selectors configured") {
		t.Fatalf("missing card selector warning, logs:\n%s", logs.String())
	}
}
