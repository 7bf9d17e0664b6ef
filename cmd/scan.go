package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"github.com/flanksource/defect-track/git"
	"github.com/flanksource/defect-track/ingest"
	"github.com/flanksource/defect-track/internal/cache"
	"github.com/flanksource/defect-track/scan"
	"github.com/flanksource/defect-track/settings"
)

var scanCmd = &cobra.Command{
	Use:   "scan <findings-file>",
	Short: "Reconcile one scan cycle's finding batch against tracked defects",
	Long: `Ingest the tool-runner's finding batch for one scan cycle and reconcile
it against the project's tracked defects: unseen fingerprints become new
records, tracked fingerprints absent from the batch are marked FIXED,
and exclusion rules from the project settings are applied as mask flags.

Reconciliation is idempotent; if it fails with a persistence error the
same batch can simply be scanned again.

Examples:
  # Reconcile a batch using .defect-track.yaml from the current directory
  defect-track scan findings.json

  # Fill missing authors and line-change times from git blame
  defect-track scan findings.json --repo .

  # Override the project name
  defect-track scan findings.json --project billing-api`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var (
	scanProject      string
	scanSettingsFile string
	scanRepo         string
	scanWorkers      int
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanProject, "project", "", "Project name (overrides the settings file)")
	scanCmd.Flags().StringVar(&scanSettingsFile, "settings", "", "Project settings file (default is ./"+settings.DefaultFileName+")")
	scanCmd.Flags().StringVar(&scanRepo, "repo", "", "Git repository to blame findings missing author or change time")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Reconciliation workers (default is GOMAXPROCS)")
}

func runScan(cmd *cobra.Command, args []string) error {
	start := time.Now()

	projectSettings, err := loadScanSettings()
	if err != nil {
		return err
	}

	project := scanProject
	if project == "" && projectSettings != nil {
		project = projectSettings.Project
	}
	if project == "" {
		return fmt.Errorf("no project name: pass --project or create %s", settings.DefaultFileName)
	}

	findings, warnings, err := ingest.ReadBatchFile(args[0])
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warnf("%s", w)
	}

	if scanRepo != "" {
		blame, err := git.OpenBlameReader(scanRepo)
		if err != nil {
			logger.Warnf("blame enrichment disabled: %v", err)
		} else {
			findings = blame.Enrich(findings)
		}
	}

	store, err := getStore()
	if err != nil {
		return err
	}

	var integrationTime time.Time
	if projectSettings != nil {
		integrationTime = projectSettings.ToolIntegrationTime
	}

	tracker := scan.NewTracker(store, scan.WithWorkers(scanWorkers))
	result, err := tracker.Reconcile(cmd.Context(), project, findings, integrationTime)
	if err != nil {
		if errors.Is(err, scan.ErrRetryable) {
			logger.Errorf("scan cycle failed but is safe to retry in full: %v", err)
		}
		return err
	}
	for _, w := range result.Warnings {
		logger.Warnf("%s", w)
	}

	if projectSettings != nil {
		masked, err := tracker.ApplyExclusions(cmd.Context(), project, projectSettings.Exclusions)
		if err != nil {
			return err
		}
		if masked > 0 {
			logger.Infof("exclusion rules changed mask flags on %d records", masked)
		}
	}

	recordScanCycle(project, len(findings), result, time.Since(start))

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Scanned %s: %s findings\n", color.CyanString(project), color.New(color.Bold).Sprint(len(findings)))
	fmt.Printf("   New Defects: %s\n", color.RedString("%d", result.Created))
	fmt.Printf("   Fixed: %s\n", color.GreenString("%d", result.Fixed))
	if result.Revived > 0 {
		fmt.Printf("   Revived: %s\n", color.YellowString("%d", result.Revived))
	}
	if result.Invalid > 0 {
		fmt.Printf("   Skipped (inconsistent status): %s\n", color.RedString("%d", result.Invalid))
	}
	fmt.Printf("   Unchanged: %d\n", result.Unchanged)
	return nil
}

func loadScanSettings() (*settings.Settings, error) {
	if scanSettingsFile != "" {
		return settings.Load(scanSettingsFile)
	}
	return settings.LoadFromDir(".")
}

// recordScanCycle is bookkeeping only; a stats failure never fails the scan.
func recordScanCycle(project string, findingCount int, result *scan.ReconcileResult, duration time.Duration) {
	stats, err := cache.NewScanStats()
	if err != nil {
		logger.Warnf("scan history unavailable: %v", err)
		return
	}
	defer stats.Close()

	err = stats.RecordScan(cache.ScanCycle{
		Project:      project,
		StartedAt:    time.Now().Add(-duration),
		Duration:     duration,
		FindingCount: findingCount,
		Created:      result.Created,
		Fixed:        result.Fixed,
		Revived:      result.Revived,
	})
	if err != nil {
		logger.Warnf("failed to record scan history: %v", err)
	}
}
