package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/local/shasdl/internal/config"
	"github.com/local/shasdl/internal/shas"
)

// ErrAborted is returned when a run stopped at its first failed page.
var ErrAborted = errors.New("download stopped after the first failed page")

// NewRootCmd builds the command tree. Persistent flags override cfg.
func NewRootCmd(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:   "shasdl",
		Short: "Download Talmud pages and merge them into PDFs",
		Long: `shasdl downloads the amudim of a masechta from Google Drive, HebrewBooks or S3,
keeps them under one folder per masechta, and can merge them into per-daf
PDFs and a single PDF for the whole selection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfg.Source.Kind, "source", cfg.Source.Kind, "page source: drive, http or s3")
	f.StringVarP(&a.cfg.Fetch.OutputDir, "output-dir", "o", cfg.Fetch.OutputDir, "download directory")
	f.StringVar(&a.cfg.Fetch.CatalogFile, "catalog", cfg.Fetch.CatalogFile, "TOML catalog replacing the built-in masechtos")
	f.DurationVar(&a.cfg.Fetch.MinInterval, "interval", cfg.Fetch.MinInterval, "minimum spacing between remote calls")
	f.IntVar(&a.cfg.Fetch.MaxAttempts, "attempts", cfg.Fetch.MaxAttempts, "download attempts per page")
	f.DurationVar(&a.cfg.Fetch.RetryBaseDelay, "retry-delay", cfg.Fetch.RetryBaseDelay, "base delay between attempts, multiplied by the attempt number")

	root.AddCommand(
		newDownloadCmd(a),
		newInteractiveCmd(a),
		newListCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, cfg config.Config) error {
	return NewRootCmd(cfg).ExecuteContext(ctx)
}

// IsUsageError reports whether err came from bad input rather than a failed run.
func IsUsageError(err error) bool { return shas.IsValidation(err) }
