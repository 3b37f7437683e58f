package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/gocolly/colly/v2"
)

// retryManager re-issues failed requests with capped exponential backoff.
// Retries reuse the original request, so they neither pass the frontier
// again nor consume page budget.
type retryManager struct {
	cfg     *config.Config
	metrics *Metrics
	ctx     context.Context

	mu           sync.Mutex
	attempts     map[string]int
	timers       map[string]*pendingRetry
	pending      sync.WaitGroup
	inflight     int
	totalRetries int
	stopped      bool
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		cfg:      cfg,
		attempts: make(map[string]int),
		timers:   make(map[string]*pendingRetry),
		metrics:  metrics,
		ctx:      context.Background(),
	}
}

// pendingRetry is one scheduled re-issue. Its slot in pending is released
// exactly once: by whoever stops the timer, or by the fired callback.
type pendingRetry struct {
	timer *time.Timer
}

// Schedule arranges a retry of req and reports whether one was scheduled.
func (rm *retryManager) Schedule(req *colly.Request) bool {
	if rm.cfg.MaxRetries == 0 || req == nil || req.URL == nil {
		return false
	}
	url := req.URL.String()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}
	rm.cancelLocked(url)

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.retryScheduled()

	rm.inflight++
	rm.pending.Add(1)
	entry := &pendingRetry{}
	rm.timers[url] = entry
	entry.timer = time.AfterFunc(rm.backoff(attempt), func() {
		rm.fireRetry(url, req, entry)
	})
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// cancelLocked drops the pending retry of url. A timer that already fired
// releases its own slot in fireRetry.
func (rm *retryManager) cancelLocked(url string) {
	entry, ok := rm.timers[url]
	if !ok {
		return
	}
	delete(rm.timers, url)
	if entry.timer.Stop() {
		rm.inflight--
		rm.pending.Done()
	}
}

func (rm *retryManager) fireRetry(url string, req *colly.Request, entry *pendingRetry) {
	rm.mu.Lock()
	current := rm.timers[url] == entry
	if current {
		delete(rm.timers, url)
	}
	stopped := rm.stopped
	ctx := rm.ctx
	rm.mu.Unlock()
	defer rm.release()

	if !current || stopped || ctx.Err() != nil {
		return
	}
	if err := req.Retry(); err != nil {
		slog.Debug("retry request failed", slog.String("url", url), slog.Any("error", err))
	}
}

// release marks a retry as handed to the collector or abandoned.
func (rm *retryManager) release() {
	rm.mu.Lock()
	rm.inflight--
	rm.mu.Unlock()
	rm.pending.Done()
}

// Idle reports whether no retry is waiting or being re-issued.
func (rm *retryManager) Idle() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.inflight == 0
}

// Wait blocks until every scheduled retry has fired or been stopped.
func (rm *retryManager) Wait() {
	rm.pending.Wait()
}

// Stop cancels pending retries; later Schedule calls are refused.
func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for url := range rm.timers {
		rm.cancelLocked(url)
	}
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
