// Package download fetches remote images to local files with a bounded redirect
// budget and a hard per-download timeout. A destination is only ever replaced by
// a complete body; failures leave no partial file behind.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxRedirects = 5
	defaultUserAgent    = "sitepreview/1.0 (+https://github.com/JakeFAU/sitepreview)"
)

// Config controls Downloader behavior.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
}

// DefaultConfig returns the 30s / 5 redirect settings.
func DefaultConfig() Config {
	return Config{
		Timeout:      defaultTimeout,
		MaxRedirects: defaultMaxRedirects,
		UserAgent:    defaultUserAgent,
	}
}

// Downloader streams HTTP responses into files on an afero filesystem.
type Downloader struct {
	cfg       Config
	fs        afero.Fs
	client    *http.Client
	transport *http.Transport
	logger    *zap.Logger
}

// New builds a Downloader. A zero Timeout or UserAgent falls back to
// DefaultConfig. MaxRedirects is taken as given: zero follows no redirects and
// negative values are treated as zero.
func New(cfg Config, fs afero.Fs, logger *zap.Logger) *Downloader {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := newHTTPTransport()
	return &Downloader{
		cfg: cfg,
		fs:  fs,
		client: &http.Client{
			Transport: transport,
			// Redirects are followed by hand so the budget and relative
			// resolution stay under our control.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		transport: transport,
		logger:    logger,
	}
}

// Close releases idle keep-alive connections held by the transport.
func (d *Downloader) Close() {
	d.transport.CloseIdleConnections()
}

// Download fetches remoteURL and writes the body to dest, returning the byte count.
func (d *Downloader) Download(ctx context.Context, remoteURL, dest string) (int64, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.follow(ctx, remoteURL)
	if err != nil {
		return 0, d.classify(parent, ctx, err)
	}
	defer closeBody(resp.Body)

	n, err := WriteAtomic(d.fs, dest, resp.Body)
	if err != nil {
		return 0, d.classify(parent, ctx, err)
	}
	d.logger.Debug("download complete",
		zap.String("url", remoteURL),
		zap.String("path", dest),
		zap.Int64("bytes", n),
		zap.Duration("duration", time.Since(start)),
	)
	return n, nil
}

func (d *Downloader) follow(ctx context.Context, remoteURL string) (*http.Response, error) {
	current, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", remoteURL, err)
	}
	budget := d.cfg.MaxRedirects
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", d.cfg.UserAgent)

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", current.Redacted(), err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case isRedirect(resp.StatusCode):
			location := resp.Header.Get("Location")
			closeBody(resp.Body)
			if location == "" {
				return nil, &HTTPError{StatusCode: resp.StatusCode, URL: current.Redacted()}
			}
			if budget <= 0 {
				return nil, fmt.Errorf("%w: more than %d following %s", ErrTooManyRedirects, d.cfg.MaxRedirects, remoteURL)
			}
			budget--
			next, err := current.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
			}
			d.logger.Debug("following redirect",
				zap.String("from", current.Redacted()),
				zap.String("to", next.Redacted()),
				zap.Int("remaining", budget),
			)
			current = next
		default:
			closeBody(resp.Body)
			return nil, &HTTPError{StatusCode: resp.StatusCode, URL: current.Redacted()}
		}
	}
}

// classify maps transport failures onto the package error kinds. A canceled
// parent context is reported as cancellation rather than as a timeout.
func (d *Downloader) classify(parent, ctx context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("download canceled: %w", parent.Err())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, d.cfg.Timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// WriteAtomic streams r into a temp file beside dest and renames it over dest
// once the copy completes. The temp file is removed on every failure path; a
// failed removal is joined onto the returned error.
func WriteAtomic(fs afero.Fs, dest string, r io.Reader) (_ int64, err error) {
	dir := filepath.Dir(dest)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return 0, &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := afero.TempFile(fs, dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, &IOError{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			if rmErr := fs.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, &IOError{Op: "remove", Path: tmpName, Err: rmErr})
			}
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, &IOError{Op: "copy", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := fs.Rename(tmpName, dest); err != nil {
		return 0, &IOError{Op: "rename", Path: dest, Err: err}
	}
	committed = true
	return n, nil
}

func isRedirect(code int) bool {
	return code >= 300 && code < 400
}

func closeBody(body io.ReadCloser) {
	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
}
