package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"github.com/flanksource/defect-track/report"
	"github.com/flanksource/defect-track/scan"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate unrepaired defects per author and severity",
	Long: `Aggregate the project's currently-unrepaired defects (live and not
suppressed by ignore or mask flags) into per-author counts, ordered by
descending total.

Examples:
  # Human-readable author summary
  defect-track report --project billing-api

  # External reporting shape
  defect-track report --project billing-api --json`,
	RunE: runReport,
}

var reportProject string

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportProject, "project", "", "Project name")
	reportCmd.MarkFlagRequired("project")
}

func runReport(cmd *cobra.Command, args []string) error {
	store, err := getStore()
	if err != nil {
		return err
	}

	records, err := store.ProjectDefects(cmd.Context(), reportProject)
	if err != nil {
		return err
	}

	summaries, err := scan.Aggregate(records)
	if err != nil {
		var integrity *scan.IntegrityError
		if !errors.As(err, &integrity) {
			return err
		}
		// Inconsistent records are excluded, not guessed at.
		logger.Errorf("%v", integrity)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Build(summaries))
	}

	if len(summaries) == 0 {
		fmt.Printf("No unrepaired defects for %s\n", color.CyanString(reportProject))
		return nil
	}

	fmt.Printf("Unrepaired defects for %s\n", color.CyanString(reportProject))
	total := 0
	for _, s := range summaries {
		total += s.TotalCount
		fmt.Printf("   %s: %s (serious=%s normal=%s prompt=%s)\n",
			color.New(color.FgCyan, color.Bold).Sprint(s.Name),
			color.New(color.Bold).Sprint(s.TotalCount),
			color.RedString("%d", s.SeriousCount),
			color.YellowString("%d", s.NormalCount),
			color.WhiteString("%d", s.PromptCount))
	}
	fmt.Printf("Total: %d\n", total)
	return nil
}
