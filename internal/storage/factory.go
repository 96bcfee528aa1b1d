package storage

import (
	"context"
	"fmt"
	"strings"

	gcsclient "cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sitepreview/internal/storage/gcs"
	"github.com/JakeFAU/sitepreview/internal/storage/local"
	"github.com/JakeFAU/sitepreview/internal/storage/memory"
)

// Provider names accepted by Open.
const (
	ProviderNone   = "none"
	ProviderLocal  = "local"
	ProviderMemory = "memory"
	ProviderGCS    = "gcs"
)

// Config selects and configures the mirror backend.
type Config struct {
	Provider string       `mapstructure:"provider"`
	Local    local.Config `mapstructure:"local"`
	GCS      gcs.Config   `mapstructure:"gcs"`
}

// Open builds the configured Mirror. The returned close func is never nil.
func Open(ctx context.Context, cfg Config, fs afero.Fs, logger *zap.Logger) (Mirror, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noClose := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return Noop{}, noClose, nil
	case ProviderMemory:
		return memory.NewBlobStore(), noClose, nil
	case ProviderLocal:
		store, err := local.New(fs, cfg.Local)
		if err != nil {
			return nil, noClose, fmt.Errorf("local mirror: %w", err)
		}
		return store, noClose, nil
	case ProviderGCS:
		var opts []option.ClientOption
		if cfg.GCS.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.GCS.Endpoint), option.WithoutAuthentication())
		}
		client, err := gcsclient.NewClient(ctx, opts...)
		if err != nil {
			return nil, noClose, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, cfg.GCS)
		if err == nil {
			err = store.Verify(ctx)
		}
		if err != nil {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("failed to close gcs client after setup failure", zap.Error(closeErr))
			}
			return nil, noClose, fmt.Errorf("gcs mirror: %w", err)
		}
		logger.Info("mirroring previews to gcs", zap.String("bucket", cfg.GCS.Bucket))
		return store, client.Close, nil
	default:
		return nil, noClose, fmt.Errorf("unknown mirror provider %q", cfg.Provider)
	}
}
