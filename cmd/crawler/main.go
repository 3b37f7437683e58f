package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/pipeline"
	"github.com/aluiziolira/go-scrape-products/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "crawler [start URLs...]",
		Short: "Crawl e-commerce category pages and extract product links",
		Long: `crawler walks listing pages of an online catalog, follows pagination and
product links matched by the configured URL patterns, and writes one record
per product card found on each product page.

Options are read from ./crawler.yaml (or --config), CRAWLER_* environment
variables and flags, in increasing order of precedence.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "load configuration: %v\n", err)
				return err
			}
			if len(args) > 0 {
				cfg.StartURLs = args
			}

			if show, _ := cmd.Flags().GetBool("show-config"); show {
				return showConfig(cmd.OutOrStdout(), cfg)
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	defaults := config.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./crawler.yaml)")
	flags.Bool("show-config", false, "Print the effective configuration as YAML and exit")

	flags.StringSlice("listing-pattern", nil, "Regex for listing (category/pagination) URLs, repeatable")
	flags.StringSlice("detail-pattern", nil, "Regex for product detail URLs, repeatable")
	flags.StringSlice("card-selector", nil, "CSS selector for product cards, repeatable")
	flags.StringSlice("link-selector", nil, "CSS selector for the product link inside a card, repeatable")
	flags.StringSlice("pagination-selector", nil, "CSS selector for pagination links, repeatable")
	flags.IntP("max-pages", "p", defaults.MaxPages, "Maximum pages to enqueue, seeds included")

	flags.Int("parallel", defaults.Parallelism, "Number of concurrent requests")
	flags.Duration("delay", defaults.Delay, "Delay between requests to the same domain")
	flags.Duration("random-delay", defaults.RandomDelay, "Random jitter added to delay")
	flags.Duration("timeout", defaults.Timeout, "HTTP request timeout")
	flags.Int("max-retries", defaults.MaxRetries, "Retry attempts per failed URL")
	flags.Duration("retry-backoff", defaults.RetryBackoff, "Initial retry backoff")
	flags.Duration("retry-backoff-max", defaults.RetryBackoffMax, "Maximum retry backoff")
	flags.String("user-agent", defaults.UserAgent, "HTTP User-Agent header")
	flags.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")

	flags.StringP("output", "o", defaults.OutputFile, "Output file path")
	flags.StringP("format", "f", defaults.OutputFormat, "Output format: csv, json, dual, or sqlite")
	flags.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolP("verbose", "v", defaults.Verbose, "Enable debug logging")

	bindings := []struct {
		key  string
		flag string
	}{
		{"listing_url_patterns", "listing-pattern"},
		{"detail_url_patterns", "detail-pattern"},
		{"product_card_selectors", "card-selector"},
		{"product_link_selectors", "link-selector"},
		{"pagination_selectors", "pagination-selector"},
		{"max_pages", "max-pages"},
		{"parallelism", "parallel"},
		{"delay", "delay"},
		{"random_delay", "random-delay"},
		{"timeout", "timeout"},
		{"max_retries", "max-retries"},
		{"retry_backoff", "retry-backoff"},
		{"retry_backoff_max", "retry-backoff-max"},
		{"user_agent", "user-agent"},
		{"respect_robots_txt", "respect-robots"},
		{"output_file", "output"},
		{"output_format", "format"},
		{"metrics_addr", "metrics-addr"},
		{"verbose", "verbose"},
	}
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", b.flag, err))
		}
	}

	return cmd
}

func showConfig(w io.Writer, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "# warning: configuration is invalid: %v\n", err)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	fmt.Fprintf(w, "# effective configuration (flags > %s_* env > config file > defaults)\n", config.EnvPrefix)
	_, err = w.Write(out)
	return err
}

func run(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return err
	}

	slog.Info("starting crawl",
		slog.Any("start_urls", cfg.StartURLs),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Int("workers", cfg.Parallelism),
		slog.String("format", cfg.OutputFormat),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		return err
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("open output", slog.String("file", cfg.OutputFile), slog.Any("error", err))
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close output", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("interrupted, finishing in-flight pages")
	}()

	stopMetrics := serveMetrics(cfg.MetricsAddr, s.Metrics)
	defer stopMetrics()

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.ReportProgress(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		return err
	}

	if err := p.Close(); err != nil {
		slog.Error("flush records", slog.Any("error", err))
		return err
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output failed validation", slog.String("file", cfg.OutputFile), slog.Any("error", err))
		return err
	}

	printSummary(out, result, cfg.OutputFile, p.Stats())
	return nil
}

// serveMetrics exposes the crawler registry on addr until the returned
// function is called. An empty addr disables the endpoint.
func serveMetrics(addr string, m *scraper.Metrics) func() {
	if addr == "" || m == nil {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics endpoint stopped", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	slog.Info("serving metrics", slog.String("addr", addr), slog.String("path", "/metrics"))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("metrics endpoint shutdown", slog.Any("error", err))
		}
	}
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		csvPath, jsonPath := pipeline.DualPaths(filename)
		return pipeline.NewDualWriter(csvPath, jsonPath)
	case "sqlite":
		return pipeline.NewSQLiteWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(w io.Writer, result *models.CrawlResult, outputFile string, records pipeline.Stats) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Crawl complete")

	duration := result.EndTime.Sub(result.StartTime)

	fmt.Fprintf(w, "  Records:       %d extracted, %d written\n", result.RecordCount, records.Processed)
	if records.MissingLinks > 0 {
		fmt.Fprintf(w, "  Missing links: %d\n", records.MissingLinks)
	}
	fmt.Fprintf(w, "  Pages:         %d fetched of %d enqueued (%d seeds, budget %d)\n", result.PageCount, result.BudgetUsed, result.SeedsEnqueued, result.BudgetMax)
	if len(result.EnqueuedByRole) > 0 {
		fmt.Fprintf(w, "  By role:       %v\n", result.EnqueuedByRole)
	}
	if len(result.Decisions) > 0 {
		fmt.Fprintf(w, "  Decisions:     %v\n", result.Decisions)
	}
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Fprintf(w, "  Success rate:  %.2f%%\n", successRate)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	fmt.Fprintf(w, "  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if len(records.ValidationErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", records.ValidationErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
