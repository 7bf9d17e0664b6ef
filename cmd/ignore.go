package cmd

import (
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"github.com/flanksource/defect-track/scan"
)

var ignoreCmd = &cobra.Command{
	Use:   "ignore <fingerprint>",
	Short: "Mark or unmark a defect as ignored",
	Long: `Set the IGNORED suppression flag on a defect. The defect's liveness is
untouched: it still flips to FIXED when it disappears from a scan, but
it is excluded from author summaries while ignored.

Examples:
  defect-track ignore 4f2a... --project billing-api
  defect-track ignore 4f2a... --project billing-api --remove`,
	Args: cobra.ExactArgs(1),
	RunE: runIgnore,
}

var (
	ignoreProject string
	ignoreRemove  bool
)

func init() {
	rootCmd.AddCommand(ignoreCmd)
	ignoreCmd.Flags().StringVar(&ignoreProject, "project", "", "Project name")
	ignoreCmd.Flags().BoolVar(&ignoreRemove, "remove", false, "Clear the IGNORED flag instead of setting it")
	ignoreCmd.MarkFlagRequired("project")
}

func runIgnore(cmd *cobra.Command, args []string) error {
	store, err := getStore()
	if err != nil {
		return err
	}

	tracker := scan.NewTracker(store)
	if err := tracker.SetIgnored(cmd.Context(), ignoreProject, args[0], !ignoreRemove); err != nil {
		return err
	}

	if ignoreRemove {
		logger.Infof("cleared IGNORED on %s", args[0])
	} else {
		logger.Infof("set IGNORED on %s", args[0])
	}
	return nil
}
