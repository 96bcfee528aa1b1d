// Package config loads and validates sitepreview configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitepreview/internal/asset"
	"github.com/JakeFAU/sitepreview/internal/logging"
	"github.com/JakeFAU/sitepreview/internal/screenshot/headless"
	"github.com/JakeFAU/sitepreview/internal/stage"
	"github.com/JakeFAU/sitepreview/internal/storage"
)

// EnvPrefix namespaces environment overrides, e.g. SITEPREVIEW_VALIDITY_MIN_BYTES.
const EnvPrefix = "SITEPREVIEW"

// DefaultRegistry is the list of pages linked from the site.
var DefaultRegistry = []string{
	"https://github.com/undefcc",
	"https://fst.fujica.com.cn",
	"https://www.fujica.com.cn/lists/104.html",
	"https://fsbigdata.fujica.com.cn",
	"https://www.yuque.com/hexc",
	"https://undefcc.github.io",
	"https://www.cnblogs.com/cc1997",
	"https://www.npmjs.com/org/fujica",
	"https://fujicafe.github.io/utils/modules.html",
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    logging.Config   `mapstructure:"logging"`
	Registry   []string         `mapstructure:"registry"`
	Output     OutputConfig     `mapstructure:"output"`
	Validity   ValidityConfig   `mapstructure:"validity"`
	Prefetch   PrefetchConfig   `mapstructure:"prefetch"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Download   DownloadConfig   `mapstructure:"download"`
	Compress   CompressConfig   `mapstructure:"compress"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Mirror     MirrorConfig     `mapstructure:"mirror"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Stage      stage.Plan       `mapstructure:"stage"`
	Server     ServerConfig     `mapstructure:"server"`
}

// OutputConfig locates generated files.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	Extension string `mapstructure:"extension"`
	// Manifest is the YAML run summary; empty disables it.
	Manifest string `mapstructure:"manifest"`
	// MetricsTextfile receives a Prometheus textfile dump after prefetch; empty disables it.
	MetricsTextfile string `mapstructure:"metrics_textfile"`
}

// ValidityConfig holds the cache validity threshold.
type ValidityConfig struct {
	MinBytes int64 `mapstructure:"min_bytes"`
}

// PrefetchConfig tunes the batch driver.
type PrefetchConfig struct {
	PacingDelay      time.Duration `mapstructure:"pacing_delay"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Placeholders     bool          `mapstructure:"placeholders"`
}

// ScreenshotConfig describes the remote screenshot service.
type ScreenshotConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Params  map[string]string `mapstructure:"params"`
}

// DownloadConfig configures the HTTP downloader.
type DownloadConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// CompressConfig configures in-place image compression.
type CompressConfig struct {
	Enabled         bool  `mapstructure:"enabled"`
	MaxDimension    int   `mapstructure:"max_dimension"`
	DefaultQuality  int   `mapstructure:"default_quality"`
	MediumQuality   int   `mapstructure:"medium_quality"`
	LowQuality      int   `mapstructure:"low_quality"`
	MediumThreshold int64 `mapstructure:"medium_threshold"`
	LowThreshold    int64 `mapstructure:"low_threshold"`
}

// FallbackConfig configures the local renderer used when the service fails.
type FallbackConfig struct {
	Headless headless.Config `mapstructure:"headless"`
}

// MirrorConfig selects the blob mirror for finished previews.
type MirrorConfig struct {
	storage.Config `mapstructure:",squash"`
	Prefix         string `mapstructure:"prefix"`
}

// LedgerConfig selects where run outcomes are recorded.
type LedgerConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls the outcome ledger connection pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ServerConfig controls the serve wrapper.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	StaticDir       string        `mapstructure:"static_dir"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	PerfLogEvery    int64         `mapstructure:"perf_log_every"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load builds a Config from defaults, an optional file, and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("registry", DefaultRegistry)
	v.SetDefault("output.dir", "public/images/preview")
	v.SetDefault("output.extension", asset.DefaultExtension)
	v.SetDefault("output.manifest", "public/images/preview/manifest.yaml")
	v.SetDefault("output.metrics_textfile", "")
	v.SetDefault("validity.min_bytes", 10240)
	v.SetDefault("prefetch.pacing_delay", time.Second)
	v.SetDefault("prefetch.failure_threshold", 5)
	v.SetDefault("prefetch.placeholders", true)
	v.SetDefault("screenshot.base_url", "https://api.microlink.io/")
	v.SetDefault("screenshot.params", map[string]string{
		"screenshot": "true",
		"meta":       "false",
		"embed":      "screenshot.url",
	})
	v.SetDefault("download.timeout", 30*time.Second)
	v.SetDefault("download.max_redirects", 5)
	v.SetDefault("download.user_agent", "sitepreview/1.0")
	v.SetDefault("compress.enabled", true)
	v.SetDefault("compress.max_dimension", 2000)
	v.SetDefault("compress.default_quality", 80)
	v.SetDefault("compress.medium_quality", 75)
	v.SetDefault("compress.low_quality", 70)
	v.SetDefault("compress.medium_threshold", 1_000_000)
	v.SetDefault("compress.low_threshold", 2_000_000)
	v.SetDefault("fallback.headless.enabled", false)
	v.SetDefault("fallback.headless.timeout", 45*time.Second)
	v.SetDefault("fallback.headless.viewport_width", 1200)
	v.SetDefault("fallback.headless.viewport_height", 630)
	v.SetDefault("mirror.provider", storage.ProviderNone)
	v.SetDefault("mirror.prefix", "previews")
	v.SetDefault("mirror.local.base_dir", "")
	v.SetDefault("mirror.gcs.bucket", "")
	v.SetDefault("mirror.gcs.prefix", "")
	v.SetDefault("mirror.gcs.endpoint", "")
	v.SetDefault("ledger.provider", "none")
	v.SetDefault("ledger.postgres.dsn", "")
	v.SetDefault("ledger.postgres.table", "asset_outcomes")
	v.SetDefault("ledger.postgres.max_conns", 4)
	v.SetDefault("stage.root", stage.DefaultPlan().Root)
	v.SetDefault("stage.pairs", []map[string]string{
		{"src": ".next/static", "dst": ".next/static"},
		{"src": "public", "dst": "public"},
	})
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.static_dir", "out")
	v.SetDefault("server.slow_threshold", time.Second)
	v.SetDefault("server.perf_log_every", 100)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Validity.MinBytes <= 0 {
		return errors.New("validity.min_bytes must be > 0")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir is required")
	}
	if c.Prefetch.PacingDelay < 0 {
		return errors.New("prefetch.pacing_delay must be >= 0")
	}
	if c.Prefetch.FailureThreshold < 0 {
		return errors.New("prefetch.failure_threshold must be >= 0")
	}
	if c.Download.Timeout <= 0 {
		return errors.New("download.timeout must be > 0")
	}
	if c.Download.MaxRedirects < 0 {
		return errors.New("download.max_redirects must be >= 0")
	}
	if c.Compress.MaxDimension <= 0 {
		return errors.New("compress.max_dimension must be > 0")
	}
	for name, q := range map[string]int{
		"compress.default_quality": c.Compress.DefaultQuality,
		"compress.medium_quality":  c.Compress.MediumQuality,
		"compress.low_quality":     c.Compress.LowQuality,
	} {
		if q < 1 || q > 100 {
			return fmt.Errorf("%s must be between 1 and 100", name)
		}
	}
	if c.Compress.LowThreshold < c.Compress.MediumThreshold {
		return errors.New("compress.low_threshold must be >= compress.medium_threshold")
	}
	switch strings.ToLower(c.Ledger.Provider) {
	case "", "none":
	case "postgres":
		if c.Ledger.Postgres.DSN == "" {
			return errors.New("ledger.postgres.dsn must be set when ledger.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown ledger provider %q", c.Ledger.Provider)
	}
	if c.Server.PerfLogEvery < 0 {
		return errors.New("server.perf_log_every must be >= 0")
	}
	return nil
}

// Sources parses the registry.
func (c Config) Sources() ([]asset.Source, error) {
	sources, err := asset.NewRegistry(c.Registry)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return sources, nil
}
