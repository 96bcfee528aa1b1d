// Package app holds long-lived services shared by the CLI commands.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepreview/internal/config"
	"github.com/JakeFAU/sitepreview/internal/ledger"
	"github.com/JakeFAU/sitepreview/internal/ledger/postgres"
	"github.com/JakeFAU/sitepreview/internal/storage"
)

// App is the dependency container handed to every command through the context.
// The mirror and ledger are only opened by Connect, since most commands never
// touch them.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	fs          afero.Fs
	mirror      storage.Mirror
	mirrorClose func() error
	ledger      ledger.Recorder
	connected   bool
}

// New creates an App. A nil fs means the OS filesystem.
func New(cfg config.Config, logger *zap.Logger, fs afero.Fs) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &App{
		cfg:         cfg,
		logger:      logger,
		fs:          fs,
		mirror:      storage.Noop{},
		mirrorClose: func() error { return nil },
		ledger:      ledger.Noop{},
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetFs returns the filesystem every component writes through.
func (a *App) GetFs() afero.Fs { return a.fs }

// GetMirror returns the blob mirror, a no-op until Connect succeeds.
func (a *App) GetMirror() storage.Mirror { return a.mirror }

// GetLedger returns the outcome ledger, a no-op until Connect succeeds.
func (a *App) GetLedger() ledger.Recorder { return a.ledger }

// Connect opens the configured mirror and ledger. It is safe to call twice.
func (a *App) Connect(ctx context.Context) error {
	if a.connected {
		return nil
	}
	mirror, closeMirror, err := storage.Open(ctx, a.cfg.Mirror.Config, a.fs, a.logger)
	if err != nil {
		return fmt.Errorf("open mirror: %w", err)
	}

	rec, err := openLedger(ctx, a.cfg.Ledger)
	if err != nil {
		if closeErr := closeMirror(); closeErr != nil {
			a.logger.Warn("failed to close mirror", zap.Error(closeErr))
		}
		return fmt.Errorf("open ledger: %w", err)
	}

	a.mirror, a.mirrorClose, a.ledger = mirror, closeMirror, rec
	a.connected = true
	a.logger.Debug("services connected",
		zap.String("mirror", a.cfg.Mirror.Provider),
		zap.String("ledger", a.cfg.Ledger.Provider),
	)
	return nil
}

func openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Recorder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return ledger.Noop{}, nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown ledger provider %q", cfg.Provider)
	}
}

// Close releases the ledger and mirror and flushes the logger.
func (a *App) Close() {
	a.ledger.Close()
	if err := a.mirrorClose(); err != nil {
		a.logger.Warn("error closing mirror", zap.Error(err))
	}
	// Sync fails on terminals (ENOTTY); nothing useful can be done about it.
	_ = a.logger.Sync()
}
