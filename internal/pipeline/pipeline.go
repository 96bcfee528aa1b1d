// Package pipeline drives the screenshot prefetch batch: it walks the registry
// in order, reuses valid cached files, downloads the rest, compresses and
// mirrors what it fetched, and tallies outcomes for the exit status.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepreview/internal/asset"
	"github.com/JakeFAU/sitepreview/internal/clock/system"
	"github.com/JakeFAU/sitepreview/internal/compress"
	"github.com/JakeFAU/sitepreview/internal/download"
	"github.com/JakeFAU/sitepreview/internal/ledger"
	"github.com/JakeFAU/sitepreview/internal/metrics"
	"github.com/JakeFAU/sitepreview/internal/screenshot"
	"github.com/JakeFAU/sitepreview/internal/storage"
)

// ErrUndersized means a download completed but is below the validity threshold.
var ErrUndersized = errors.New("downloaded asset is below the validity threshold")

// DefaultFailureThreshold is the number of failures a run tolerates.
const DefaultFailureThreshold = 5

// Config parameterizes a Runner.
type Config struct {
	OutputDir   string
	Extension   string
	MinBytes    int64
	PacingDelay time.Duration
	// MirrorPrefix is prepended to object names sent to the mirror.
	MirrorPrefix string
}

// Dependencies are the collaborators a Runner needs. Nil optional fields get
// no-op or system defaults; Fetcher is required.
type Dependencies struct {
	Fs          afero.Fs
	Fetcher     Fetcher
	Endpoint    URLBuilder
	Compressor  compress.Compressor
	Mirror      storage.Mirror
	Ledger      ledger.Recorder
	Fallback    Renderer
	Placeholder PlaceholderWriter
	Hasher      Hasher
	IDs         IDGenerator
	Clock       Clock
	Pauser      PauseController
}

// Runner processes registries one entry at a time.
type Runner struct {
	cfg         Config
	deps        Dependencies
	logger      *zap.Logger
	codecWarned bool
	contentType string
}

// New builds a Runner.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Runner, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline requires a fetcher")
	}
	if cfg.MinBytes <= 0 {
		return nil, asset.ErrInvalidThreshold
	}
	if cfg.Extension == "" {
		cfg.Extension = asset.DefaultExtension
	}
	if cfg.PacingDelay < 0 {
		cfg.PacingDelay = 0
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Endpoint == nil {
		deps.Endpoint = screenshot.DefaultEndpoint()
	}
	if deps.Compressor == nil {
		deps.Compressor = compress.Noop{}
	}
	if deps.Mirror == nil {
		deps.Mirror = storage.Noop{}
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Pauser == nil {
		deps.Pauser = system.Pauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	contentType := mime.TypeByExtension(cfg.Extension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger, contentType: contentType}, nil
}

// Run processes sources in order and returns the aggregate. A canceled context
// stops the batch between entries; the entry in flight is not counted.
func (r *Runner) Run(ctx context.Context, sources []asset.Source) Summary {
	summary := Summary{RunID: r.newID()}
	if err := r.deps.Fs.MkdirAll(r.cfg.OutputDir, 0o750); err != nil {
		r.logger.Error("failed to create output directory", zap.String("path", r.cfg.OutputDir), zap.Error(err))
	}

	for i, src := range sources {
		if i > 0 {
			r.deps.Pauser.Pause(ctx, r.cfg.PacingDelay)
		}
		if ctx.Err() != nil {
			summary.Canceled = true
			break
		}
		outcome := r.process(ctx, src)
		if !outcome.Success && ctx.Err() != nil {
			summary.Canceled = true
			break
		}
		summary.Total++
		summary.add(outcome)
		r.record(ctx, summary.RunID, outcome)
	}

	r.logger.Info("prefetch complete",
		zap.String("run_id", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("canceled", summary.Canceled),
	)
	return summary
}

func (r *Runner) process(ctx context.Context, src asset.Source) Outcome {
	start := r.deps.Clock.Now()
	file := asset.Filename(src.URL, r.cfg.Extension)
	dest := filepath.Join(r.cfg.OutputDir, file)
	out := Outcome{Source: src, Path: dest, FetchedAt: start}
	log := r.logger.With(zap.String("url", src.URL), zap.String("path", dest))

	local, needsFetch, err := asset.EnsureValid(r.deps.Fs, dest, r.cfg.MinBytes)
	if err != nil {
		// Whatever sits at dest was never written by this run; leave it alone.
		return r.reject(out, log, err)
	}
	if !needsFetch {
		out.Success = true
		out.Skipped = true
		out.Bytes = local.SizeBytes
		out.Hash = r.hash(dest, log)
		log.Info("cached asset is valid, skipping", zap.Int64("bytes", local.SizeBytes))
		return out
	}

	n, usedFallback, err := r.fetch(ctx, src.URL, dest, log)
	out.Duration = r.deps.Clock.Now().Sub(start)
	out.Fallback = usedFallback
	if err != nil {
		return r.fail(out, log, err)
	}
	if n < r.cfg.MinBytes {
		return r.fail(out, log, fmt.Errorf("%w: got %d bytes, want at least %d", ErrUndersized, n, r.cfg.MinBytes))
	}
	out.Bytes = n

	if res := r.compress(ctx, dest, log); res != nil {
		out.Compressed = res
		out.Bytes = res.CompressedBytes
	}

	out.Success = true
	out.Hash = r.hash(dest, log)
	out.BlobURI = r.mirror(ctx, dest, file, log)
	log.Info("downloaded", zap.Int64("bytes", out.Bytes), zap.Bool("fallback", usedFallback))
	return out
}

func (r *Runner) fetch(ctx context.Context, pageURL, dest string, log *zap.Logger) (int64, bool, error) {
	remote, err := r.deps.Endpoint.URLFor(pageURL)
	if err != nil {
		return 0, false, err
	}
	began := time.Now()
	n, err := r.deps.Fetcher.Download(ctx, remote, dest)
	metrics.ObserveDownload(err == nil, time.Since(began))
	if err == nil || r.deps.Fallback == nil || ctx.Err() != nil {
		return n, false, err
	}

	log.Warn("screenshot service failed, trying headless renderer", zap.Error(err))
	data, renderErr := r.deps.Fallback.Capture(ctx, pageURL)
	if renderErr != nil {
		log.Warn("headless renderer failed", zap.Error(renderErr))
		return 0, false, err
	}
	n, writeErr := download.WriteAtomic(r.deps.Fs, dest, bytes.NewReader(data))
	if writeErr != nil {
		return 0, false, writeErr
	}
	return n, true, nil
}

func (r *Runner) compress(ctx context.Context, dest string, log *zap.Logger) *compress.Result {
	res, err := r.deps.Compressor.Compress(ctx, dest)
	switch {
	case errors.Is(err, compress.ErrCodecUnavailable):
		if !r.codecWarned {
			log.Warn("image codec unavailable, compression disabled for this run", zap.Error(err))
			r.codecWarned = true
		}
		r.deps.Compressor = compress.Noop{}
		return nil
	case err != nil:
		log.Warn("compression failed, keeping original", zap.Error(err))
		return nil
	case res == nil:
		return nil
	}
	metrics.ObserveCompression(res.Saved())
	log.Debug("compressed",
		zap.Int64("original_bytes", res.OriginalBytes),
		zap.Int64("compressed_bytes", res.CompressedBytes),
	)
	return res
}

func (r *Runner) hash(dest string, log *zap.Logger) string {
	if r.deps.Hasher == nil {
		return ""
	}
	sum, err := r.deps.Hasher.HashFile(dest)
	if err != nil {
		log.Warn("failed to hash asset", zap.Error(err))
		return ""
	}
	return sum
}

func (r *Runner) mirror(ctx context.Context, dest, file string, log *zap.Logger) string {
	f, err := r.deps.Fs.Open(dest)
	if err != nil {
		log.Warn("failed to open asset for mirroring", zap.Error(err))
		return ""
	}
	defer f.Close()
	name := file
	if r.cfg.MirrorPrefix != "" {
		name = path.Join(r.cfg.MirrorPrefix, file)
	}
	uri, err := r.deps.Mirror.PutObject(ctx, name, r.contentType, f)
	if err != nil {
		log.Warn("failed to mirror asset", zap.Error(err))
		return ""
	}
	return uri
}

// fail makes sure nothing is left at the destination, then rejects the entry.
func (r *Runner) fail(out Outcome, log *zap.Logger, err error) Outcome {
	for _, p := range []string{out.Path, out.Path + ".tmp"} {
		if rmErr := r.deps.Fs.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Error("failed to remove partial asset", zap.String("partial", p), zap.Error(rmErr))
		}
	}
	return r.reject(out, log, err)
}

// reject marks out failed and optionally drops a placeholder.
func (r *Runner) reject(out Outcome, log *zap.Logger, err error) Outcome {
	out.Success = false
	out.Err = err
	out.Bytes = 0
	if r.deps.Placeholder != nil {
		if p, created, phErr := r.deps.Placeholder.Write(asset.BaseName(out.Source.URL)); phErr != nil {
			log.Warn("failed to write placeholder", zap.Error(phErr))
		} else {
			out.Placeholder = p
			if created {
				log.Info("placeholder written", zap.String("placeholder", p))
			}
		}
	}
	log.Error("asset failed", zap.Error(err))
	return out
}

func (r *Runner) record(ctx context.Context, runID string, out Outcome) {
	metrics.ObserveAsset(out.Status(), out.Bytes)

	rec := ledger.Record{
		ID:         r.newID(),
		RunID:      runID,
		URL:        out.Source.URL,
		File:       filepath.Base(out.Path),
		Status:     out.Status(),
		Bytes:      out.Bytes,
		Hash:       out.Hash,
		BlobURI:    out.BlobURI,
		Duration:   out.Duration,
		RecordedAt: r.deps.Clock.Now(),
	}
	if out.Compressed != nil {
		rec.CompressedBytes = out.Compressed.CompressedBytes
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("%s-%s", runID, asset.BaseName(out.Source.URL))
	}
	if err := r.deps.Ledger.Record(ctx, rec); err != nil {
		r.logger.Warn("failed to record asset outcome", zap.String("url", out.Source.URL), zap.Error(err))
	}
}

func (r *Runner) newID() string {
	if r.deps.IDs == nil {
		return ""
	}
	id, err := r.deps.IDs.NewID()
	if err != nil {
		r.logger.Warn("failed to generate id", zap.Error(err))
		return ""
	}
	return id
}
