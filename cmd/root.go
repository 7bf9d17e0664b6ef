package cmd

import (
	"fmt"
	"os"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flanksource/defect-track/internal/cache"
)

var (
	cfgFile string
	dataDir string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "defect-track",
	Short: "Track static-analysis defects across scan cycles",
	Long: `defect-track ingests finding batches from static-analysis tool runs,
classifies each defect as NEW or HISTORY against the project's tool
integration time, tracks repair status across successive scans, and
aggregates unrepaired defects per author and severity.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.defect-track.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the defect database (default is $HOME/.cache/defect-track)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "Format output in json")

	logger.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".defect-track")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debugf("using config file: %s", viper.ConfigFileUsed())
	}

	if dataDir == "" {
		dataDir = viper.GetString("data-dir")
	}
}

// getStore opens the defect store, honoring --data-dir.
func getStore() (*cache.DefectStore, error) {
	if dataDir != "" {
		db, err := cache.NewGormDBWithPath(dataDir)
		if err != nil {
			return nil, err
		}
		return cache.NewDefectStoreWithDB(db), nil
	}
	return cache.NewDefectStore()
}
