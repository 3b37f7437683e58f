// Package scraper runs the crawl on top of colly: it fetches pages with a
// bounded worker pool and hands every fetched page to the frontier scheduler.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/frontier"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
	"github.com/gocolly/colly/v2"
)

const (
	labelKey = "label"
	startKey = "start"
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("scraper: already run")

// Scraper wraps the colly collector, retry logic and frontier for one run.
type Scraper struct {
	cfg          *config.Config
	collector    *colly.Collector
	classifier   *frontier.Classifier
	linkSelector string
	retry        *retryManager
	Metrics      *Metrics

	ctx       context.Context
	scheduler *frontier.Scheduler
	ran       atomic.Bool

	requestCount int64
	pageCount    int64
	errorCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg. Patterns are
// compiled here, so an invalid pattern fails before anything is fetched.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	listing, detail, err := cfg.CompilePatterns()
	if err != nil {
		return nil, err
	}
	classifier, err := frontier.NewClassifier(listing, detail, cfg.ClassifyCacheSize)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	metrics := NewMetrics()
	return &Scraper{
		cfg:          cfg,
		collector:    collector,
		classifier:   classifier,
		linkSelector: linkSelector(cfg),
		retry:        newRetryManager(cfg, metrics),
		Metrics:      metrics,
		ctx:          context.Background(),
		errorsByType: make(map[string]int),
	}, nil
}

// linkSelector is the outbound link enumeration used on listing pages:
// pagination selectors plus the product link selectors. Without product link
// selectors every anchor is collected, as extraction does on detail pages.
func linkSelector(cfg *config.Config) string {
	selectors := append([]string(nil), cfg.PaginationSelectors...)
	if len(cfg.ProductLinkSelectors) > 0 {
		selectors = append(selectors, cfg.ProductLinkSelectors...)
	} else {
		selectors = append(selectors, frontier.DefaultLinkSelector)
	}
	return strings.Join(selectors, ", ")
}

// Run seeds the frontier with the configured start URLs and crawls until the
// request queue is exhausted. Records from detail pages go to sink. When ctx
// is cancelled no further URL is enqueued; in-flight fetches finish.
func (s *Scraper) Run(ctx context.Context, sink frontier.RecordSink) (*models.CrawlResult, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.retry.SetContext(ctx)

	s.scheduler = frontier.NewScheduler(s.classifier, frontier.NewBudget(s.cfg.MaxPages), s, sink, frontier.Options{
		ProductCardSelectors: s.cfg.ProductCardSelectors,
		ProductLinkSelectors: s.cfg.ProductLinkSelectors,
		Observer:             s.Metrics,
	})
	s.configureHandlers()

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.retry.Stop()
		case <-done:
		}
	}()

	seeded := s.scheduler.Seed(s.cfg.StartURLs)
	if seeded == 0 {
		slog.Warn("no start url was enqueued", slog.Int("start_urls", len(s.cfg.StartURLs)))
	}

	for {
		s.collector.Wait()
		if s.retry.Idle() {
			break
		}
		s.retry.Wait()
	}
	s.retry.Stop()

	stats := s.scheduler.Stats()
	s.Metrics.ObserveBudget(stats.BudgetUsed)
	return &models.CrawlResult{
		StartTime:      start,
		EndTime:        time.Now(),
		RecordCount:    stats.Records,
		ErrorCount:     int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:     s.snapshotFailedURLs(),
		ErrorsByType:   s.snapshotErrors(),
		RetryCount:     s.retry.TotalRetries(),
		RequestCount:   int(atomic.LoadInt64(&s.requestCount)),
		PageCount:      int(atomic.LoadInt64(&s.pageCount)),
		SeedsEnqueued:  seeded,
		ClaimedURLs:    stats.Claimed,
		BudgetUsed:     stats.BudgetUsed,
		BudgetMax:      stats.BudgetMax,
		Decisions:      stats.Decisions,
		EnqueuedByRole: stats.EnqueuedByRole,
	}, nil
}

// Enqueue schedules url for fetching under role's handler label.
func (s *Scraper) Enqueue(url string, role frontier.Role) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	ctx := colly.NewContext()
	ctx.Put(labelKey, role.String())
	return s.collector.Request(http.MethodGet, url, nil, ctx, nil)
}

func (s *Scraper) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(startKey, time.Now())
		current := atomic.AddInt64(&s.requestCount, 1)
		s.Metrics.requestStarted()
		if current%50 == 0 {
			slog.Debug("crawler request progress",
				slog.Int64("requests", current),
				slog.Int64("pages", atomic.LoadInt64(&s.pageCount)),
				slog.String("url", r.URL.String()),
			)
		}
	})

	s.collector.OnResponse(func(r *colly.Response) {
		atomic.AddInt64(&s.pageCount, 1)
		if start, ok := r.Request.Ctx.GetAny(startKey).(time.Time); ok {
			s.Metrics.responseReceived(time.Since(start))
		}
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		atomic.AddInt64(&s.errorCount, 1)
		statusCode := 0
		var req *colly.Request
		if r != nil {
			statusCode = r.StatusCode
			req = r.Request
		}
		classified := classifyError(err, statusCode)
		category := errorTypeLabel(classified)

		s.mu.Lock()
		s.errorsByType[category]++
		s.mu.Unlock()
		s.Metrics.fetchFailed(category)

		url := ""
		role := frontier.RoleUnclassified
		if req != nil && req.URL != nil {
			url = req.URL.String()
			role = frontier.ParseRole(req.Ctx.Get(labelKey))
		}

		if s.retry.Schedule(req) {
			slog.Warn("request failed, retry scheduled",
				slog.String("url", url),
				slog.String("category", category),
				slog.Any("error", err),
			)
			return
		}

		s.mu.Lock()
		s.failedURLs = append(s.failedURLs, url)
		s.mu.Unlock()
		s.scheduler.OnFetchError(url, role, classified)
	})

	s.collector.OnHTML("html", func(e *colly.HTMLElement) {
		role := frontier.ParseRole(e.Request.Ctx.Get(labelKey))
		s.scheduler.HandlePage(role, s.buildPage(e))
	})
}

func (s *Scraper) buildPage(e *colly.HTMLElement) *frontier.Page {
	pageURL := e.Request.URL.String()
	page := &frontier.Page{
		URL:      pageURL,
		Document: newDocument(e.DOM),
	}
	if href, ok := e.DOM.Find("base[href]").First().Attr("href"); ok {
		if base, ok := parser.NormalizeURL(href, pageURL); ok {
			page.BaseURL = base
		}
	}
	if frontier.ParseRole(e.Request.Ctx.Get(labelKey)) == frontier.RoleListing {
		page.Links = collectLinks(e.DOM, s.linkSelector)
	}
	return page
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
