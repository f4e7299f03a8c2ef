package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
)

// errJobFailed is returned when the import ends in the failed status.
var errJobFailed = errors.New("import job failed")

func newImportCmd(cfg *config.Config) *cobra.Command {
	var (
		templateID string
		jobName    string
		ledger     bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV file and print progress as JSON lines",
		Long: `Import a CSV file against a template and wait for the job to finish.

Every progress snapshot is written to stdout as one JSON object per line.
With --ledger the job's generated-page records follow the last snapshot.

Examples:
  bulkimport import paris.csv --template experience-v1
  bulkimport import categories.csv -t category-v1 --name "Q3 categories" --ledger`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runImport(ctx, cmd, cfg, args[0], templateID, jobName, ledger)
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", "", "template ID (required)")
	cmd.Flags().StringVarP(&jobName, "name", "n", "", "job name (default: file name)")
	cmd.Flags().BoolVar(&ledger, "ledger", false, "print the ledger after the job finishes")
	cmd.MarkFlagRequired("template")
	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, cfg *config.Config, path, templateID, jobName string, printLedger bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.ImportFile(ctx, core.ImportRequest{
		TemplateID: templateID,
		JobName:    jobName,
		Filename:   filepath.Base(path),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
	}

	updates, cancel, err := a.service.SubscribeProgress(ctx, res.Job.ID)
	if err != nil {
		return err
	}
	defer cancel()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for p := range updates {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}

	job, err := a.service.Wait(ctx, res.Job.ID)
	if err != nil {
		return err
	}
	if printLedger {
		recs, err := a.service.ListLedger(ctx, job.ID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}

	if job.Status == core.JobFailed {
		last := ""
		if n := len(job.Errors); n > 0 {
			last = job.Errors[n-1]
		}
		return fmt.Errorf("%w: %s", errJobFailed, last)
	}
	return nil
}
