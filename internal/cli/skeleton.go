package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
)

func newSkeletonCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "skeleton <template-id>",
		Short: "Write a template's CSV skeleton",
		Long: `Write the CSV skeleton of a template: the header row (required fields
first, then optional fields sorted) and one empty data row.

Examples:
  bulkimport skeleton experience-v1
  bulkimport skeleton category-v1 -o categories.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadTemplates(cfg)
			if err != nil {
				return err
			}
			tmpl, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			data, err := core.Skeleton(tmpl)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newTemplatesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List registered templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadTemplates(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tVERSION\tACTIVE\tREQUIRED")
			for _, t := range reg.All() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", t.ID, t.TargetType, t.Version, t.Active, strings.Join(t.RequiredFields, ","))
			}
			return w.Flush()
		},
	}
}
