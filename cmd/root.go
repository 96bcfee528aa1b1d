// Package cmd defines and implements the CLI commands for the sitepreview executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepreview/internal/app"
	"github.com/JakeFAU/sitepreview/internal/config"
	"github.com/JakeFAU/sitepreview/internal/ledger"
	"github.com/JakeFAU/sitepreview/internal/logging"
	"github.com/JakeFAU/sitepreview/internal/storage"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// Tests swap in their own implementation through newApp.
type App interface {
	Close()
	Connect(ctx context.Context) error
	Config() config.Config
	GetLogger() *zap.Logger
	GetFs() afero.Fs
	GetMirror() storage.Mirror
	GetLedger() ledger.Recorder
}

// newApp is the application factory.
var newApp = func(_ context.Context, cfgFile string) (App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger, afero.NewOsFs()), nil
}

// newRootCmd creates the root command and registers every subcommand.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sitepreview",
		Short: "Asset tooling for the portfolio site.",
		Long: `sitepreview prefetches screenshots of the pages the site links to,
compresses the downloaded images, writes placeholders, stages the
standalone build and serves the built site.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); SITEPREVIEW_* env vars override it")

	cmd.AddCommand(
		newPrefetchCmd(),
		newCompressCmd(),
		newPlaceholdersCmd(),
		newStageCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and exits 1 on any command error.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "sitepreview:", err)
		os.Exit(1)
	}
}
