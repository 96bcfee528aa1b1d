package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepreview/internal/asset"
	"github.com/JakeFAU/sitepreview/internal/placeholder"
)

func newPlaceholdersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "placeholders",
		Short: "Writes an SVG placeholder for every registered host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			sources, err := cfg.Sources()
			if err != nil {
				return err
			}
			bases := make([]string, 0, len(sources))
			for _, src := range sources {
				bases = append(bases, asset.BaseName(src.URL))
			}

			logger := appInstance.GetLogger()
			report, err := placeholder.NewWriter(appInstance.GetFs(), cfg.Output.Dir, logger).WriteAll(bases)
			if err != nil {
				return err
			}
			logger.Info("placeholders ready", zap.Int("written", report.Written), zap.Int("existing", report.Existing))
			return nil
		},
	}
}
