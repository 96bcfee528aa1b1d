// Package headless captures page screenshots with a local headless Chrome.
// It backs up the remote screenshot API when that service fails.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrRendererDisabled indicates rendering has been disabled via configuration.
var ErrRendererDisabled = errors.New("renderer disabled")

const (
	defaultTimeout        = 45 * time.Second
	defaultViewportWidth  = 1200
	defaultViewportHeight = 630
	settleDelay           = 500 * time.Millisecond
)

// Config controls the headless renderer.
type Config struct {
	Enabled        bool          `mapstructure:"enabled"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ViewportWidth  int64         `mapstructure:"viewport_width"`
	ViewportHeight int64         `mapstructure:"viewport_height"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// Renderer takes full-page PNG screenshots via chromedp.
type Renderer struct {
	cfg         Config
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New prepares a browser allocator. Chrome itself starts on the first Capture.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if !cfg.Enabled {
		return nil, ErrRendererDisabled
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = defaultViewportWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = defaultViewportHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	if r == nil {
		return
	}
	r.allocCancel()
}

// Capture renders pageURL and returns the screenshot as PNG bytes.
func (r *Renderer) Capture(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("headless capture: unsupported url %q", pageURL)
	}

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var buf []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(r.cfg.ViewportWidth, r.cfg.ViewportHeight),
		r.userAgentAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.FullScreenshot(&buf, 100),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	r.logger.Debug("headless capture complete",
		zap.String("url", pageURL),
		zap.Int("bytes", len(buf)),
		zap.Duration("duration", time.Since(start)),
	)
	return buf, nil
}

func (r *Renderer) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if r.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}
