package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"nestsync/pkg/config"
	"nestsync/pkg/logger"
	"nestsync/pkg/ui"
)

var (
	// Version information, set at build time
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	appData    string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nestsync",
	Short: "Sync and archive a childcare activity feed",
	Long: `nestsync pulls activity records from a childcare activity feed into a
local store, then downloads the referenced photos and videos and tags
them with capture metadata.

The two steps run independently:
  - 'nestsync metadata' fetches records for a student and date window
  - 'nestsync media' downloads media for records not yet processed

Records are deduplicated by identifier, so overlapping date windows and
repeated runs are safe.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.nestsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&appData, "app-data", "", "path to the local record store (SQLite file)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`nestsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig layers file, environment, and the global flags, then
// initializes logging
func loadConfig(extraFlags map[string]interface{}) (*config.Config, error) {
	flags := make(map[string]interface{})
	if appData != "" {
		flags["app-data"] = appData
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}
	for key, value := range extraFlags {
		flags[key] = value
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	logger.Initialize(&cfg.Logging)
	return cfg, nil
}
