package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepreview/internal/stage"
)

func newStageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Copies static assets into the standalone build output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.GetLogger()
			report, err := stage.Run(appInstance.GetFs(), appInstance.Config().Stage, logger)
			if err != nil {
				return err
			}
			logger.Info("stage finished",
				zap.Strings("copied", report.Copied),
				zap.Strings("skipped", report.Skipped),
				zap.Int("files", report.Files),
			)
			return nil
		},
	}
}
