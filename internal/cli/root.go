// Package cli provides the command-line interface for the importer.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// NewRootCmd builds the command tree. Configuration is loaded from the
// environment before any subcommand runs.
func NewRootCmd() *cobra.Command {
	cfg := &config.Config{}
	var closeLog func() error

	root := &cobra.Command{
		Use:   "bulkimport",
		Short: "Bulk content import pipeline",
		Long: `bulkimport turns CSV files into draft content records.

Each file is imported against a template that declares its required fields,
validation rules and defaults. Rows are processed in order into a job whose
progress can be paused, resumed and audited row by row.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			*cfg = *loaded

			// serve logs to stdout; one-shot commands keep stdout for their output.
			if cmd.Name() == "serve" {
				closeLog, err = logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
				return err
			}
			logger, closer, err := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			closeLog = closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				if err := closeLog(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close log file: %v\n", err)
				}
			}
		},
	}
	root.AddCommand(newServeCmd(cfg))
	root.AddCommand(newImportCmd(cfg))
	root.AddCommand(newSkeletonCmd(cfg))
	root.AddCommand(newTemplatesCmd(cfg))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
