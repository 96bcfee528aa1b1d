package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepreview/internal/compress"
)

func newCompressCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Compresses the images already in the asset directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.GetLogger()
			if dir == "" {
				dir = cfg.Output.Dir
			}

			c, err := compress.New(appInstance.GetFs(), compress.ImagingCodec{}, compressConfig(cfg), logger)
			if err != nil {
				return err
			}
			report, err := compress.Directory(cmd.Context(), appInstance.GetFs(), dir, c, logger)
			if err != nil {
				return err
			}
			logger.Info("compression finished",
				zap.Int("files", report.Files),
				zap.Int("compressed", report.Compressed),
				zap.Int64("saved_bytes", report.SavedBytes),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to compress (defaults to output.dir)")
	return cmd
}
