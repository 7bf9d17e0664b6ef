package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flanksource/defect-track/internal/cache"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scan cycles for a project",
	RunE:  runHistory,
}

var (
	historyProject string
	historyLimit   int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyProject, "project", "", "Project name")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of cycles to show")
	historyCmd.MarkFlagRequired("project")
}

func runHistory(cmd *cobra.Command, args []string) error {
	stats, err := cache.NewScanStats()
	if err != nil {
		return err
	}
	defer stats.Close()

	cycles, err := stats.History(historyProject, historyLimit)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cycles)
	}

	if len(cycles) == 0 {
		fmt.Printf("No scan history for %s\n", color.CyanString(historyProject))
		return nil
	}

	fmt.Printf("Scan history for %s\n", color.CyanString(historyProject))
	for _, c := range cycles {
		fmt.Printf("   %s  %s findings, +%s new, %s fixed (%s)\n",
			c.StartedAt.Format(time.RFC3339),
			color.New(color.Bold).Sprint(c.FindingCount),
			color.RedString("%d", c.Created),
			color.GreenString("%d", c.Fixed),
			c.Duration.Round(time.Millisecond))
	}
	return nil
}
