package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepreview/internal/asset"
	"github.com/JakeFAU/sitepreview/internal/clock/system"
	"github.com/JakeFAU/sitepreview/internal/compress"
	"github.com/JakeFAU/sitepreview/internal/config"
	"github.com/JakeFAU/sitepreview/internal/download"
	"github.com/JakeFAU/sitepreview/internal/hash/sha256"
	"github.com/JakeFAU/sitepreview/internal/id/uuid"
	"github.com/JakeFAU/sitepreview/internal/manifest"
	"github.com/JakeFAU/sitepreview/internal/metrics"
	"github.com/JakeFAU/sitepreview/internal/pipeline"
	"github.com/JakeFAU/sitepreview/internal/placeholder"
	"github.com/JakeFAU/sitepreview/internal/screenshot"
	"github.com/JakeFAU/sitepreview/internal/screenshot/headless"
)

// errTooManyFailures is returned when a prefetch run fails more entries than allowed.
var errTooManyFailures = errors.New("failure threshold exceeded")

func newPrefetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch",
		Short: "Downloads screenshots for every registered URL",
		Long: `Walks the URL registry in order, reusing cached screenshots that pass
the size check and downloading the rest through the screenshot API.
Fetched images are compressed, hashed, mirrored and listed in the
manifest. Exits non-zero when failures exceed prefetch.failure_threshold.`,
		RunE: runPrefetchCommand,
	}
}

func runPrefetchCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.GetLogger()
	fs := appInstance.GetFs()

	sources, err := cfg.Sources()
	if err != nil {
		return err
	}
	for base, urls := range asset.Collisions(sources) {
		logger.Warn("registry entries share a file name", zap.String("file", base), zap.Strings("urls", urls))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appInstance.Connect(ctx); err != nil {
		return err
	}

	downloader := download.New(download.Config{
		Timeout:      cfg.Download.Timeout,
		MaxRedirects: cfg.Download.MaxRedirects,
		UserAgent:    cfg.Download.UserAgent,
	}, fs, logger)
	defer downloader.Close()

	deps := pipeline.Dependencies{
		Fs:         fs,
		Fetcher:    downloader,
		Endpoint:   screenshot.Endpoint{BaseURL: cfg.Screenshot.BaseURL, Params: cfg.Screenshot.Params},
		Compressor: buildCompressor(cfg, fs, logger),
		Mirror:     appInstance.GetMirror(),
		Ledger:     appInstance.GetLedger(),
		Hasher:     sha256.New(fs),
		IDs:        uuid.New(),
		Clock:      system.New(),
		Pauser:     system.Pauser{},
	}
	if cfg.Prefetch.Placeholders {
		deps.Placeholder = placeholder.NewWriter(fs, cfg.Output.Dir, logger)
	}

	renderer, err := buildRenderer(cfg, logger)
	if err != nil {
		return err
	}
	if renderer != nil {
		defer renderer.Close()
		deps.Fallback = renderer
	}

	runner, err := pipeline.New(pipeline.Config{
		OutputDir:    cfg.Output.Dir,
		Extension:    cfg.Output.Extension,
		MinBytes:     cfg.Validity.MinBytes,
		PacingDelay:  cfg.Prefetch.PacingDelay,
		MirrorPrefix: cfg.Mirror.Prefix,
	}, deps, logger)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	summary := runner.Run(ctx, sources)
	writeRunArtifacts(fs, cfg, summary, logger)

	if summary.Canceled {
		return fmt.Errorf("prefetch interrupted after %d of %d entries", summary.Total, len(sources))
	}
	if summary.ExitCode(cfg.Prefetch.FailureThreshold) != 0 {
		return fmt.Errorf("%w: %d failed (threshold %d)", errTooManyFailures, summary.Failed, cfg.Prefetch.FailureThreshold)
	}
	return nil
}

func buildCompressor(cfg config.Config, fs afero.Fs, logger *zap.Logger) compress.Compressor {
	if !cfg.Compress.Enabled {
		return compress.Noop{}
	}
	// Errors are logged by compress.New, which hands back Noop.
	c, _ := compress.New(fs, compress.ImagingCodec{}, compressConfig(cfg), logger)
	return c
}

func compressConfig(cfg config.Config) compress.Config {
	return compress.Config{
		MaxDimension:    cfg.Compress.MaxDimension,
		DefaultQuality:  cfg.Compress.DefaultQuality,
		MediumQuality:   cfg.Compress.MediumQuality,
		LowQuality:      cfg.Compress.LowQuality,
		MediumThreshold: cfg.Compress.MediumThreshold,
		LowThreshold:    cfg.Compress.LowThreshold,
		MinOutputBytes:  cfg.Validity.MinBytes,
	}
}

func buildRenderer(cfg config.Config, logger *zap.Logger) (*headless.Renderer, error) {
	renderer, err := headless.New(cfg.Fallback.Headless, logger)
	switch {
	case err == nil:
		return renderer, nil
	case errors.Is(err, headless.ErrRendererDisabled):
		return nil, nil
	default:
		return nil, fmt.Errorf("init renderer: %w", err)
	}
}

func writeRunArtifacts(fs afero.Fs, cfg config.Config, summary pipeline.Summary, logger *zap.Logger) {
	if cfg.Output.Manifest != "" {
		if err := manifest.Write(fs, cfg.Output.Manifest, summary.Manifest(time.Now().UTC())); err != nil {
			logger.Error("failed to write manifest", zap.String("path", cfg.Output.Manifest), zap.Error(err))
		}
	}
	if cfg.Output.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsTextfile); err != nil {
			logger.Warn("failed to write metrics textfile", zap.Error(err))
		}
	}
}
