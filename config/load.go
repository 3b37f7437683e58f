package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. CRAWLER_MAX_PAGES.
const EnvPrefix = "CRAWLER"

// DefaultConfigName is the config file searched for in the working directory
// when no explicit path is given.
const DefaultConfigName = "crawler"

// SetDefaults registers every option with its default so that environment
// variables and bound flags are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("start_urls", []string{})
	v.SetDefault("listing_url_patterns", []string{})
	v.SetDefault("detail_url_patterns", []string{})
	v.SetDefault("product_card_selectors", []string{})
	v.SetDefault("product_link_selectors", []string{})
	v.SetDefault("pagination_selectors", []string{})
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("random_delay", d.RandomDelay)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("retry_backoff", d.RetryBackoff)
	v.SetDefault("retry_backoff_max", d.RetryBackoffMax)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("respect_robots_txt", d.RespectRobotsTxt)
	v.SetDefault("output_file", d.OutputFile)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("pipeline_buffer_size", d.PipelineBufferSize)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("classify_cache_size", d.ClassifyCacheSize)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("verbose", d.Verbose)
}

// Load layers defaults, an optional YAML config file and CRAWLER_* environment
// variables into a Config. Flags bound to v by the caller take precedence.
// An explicit path that does not exist yields ErrConfigNotFound; without a
// path, ./crawler.yaml is used when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) && path == "":
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}
