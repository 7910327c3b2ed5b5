package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd runs a backfill of every configured group when called without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "zsxqsync",
	Short: "Incremental backfill of zsxq group topics",
	Long: `zsxqsync walks the topic feed of each configured group from the newest
post backwards until it reaches content captured by a previous run.

Topics are appended to a per-group dataset (SQLite or XLSX), their images and
files are downloaded next to it, and the group's watermark is advanced only
when the walk finished cleanly.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackfill,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./zsxqsync.yaml or $HOME/.config/zsxqsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	addRunFlags(rootCmd)

	rootCmd.SetVersionTemplate(`zsxqsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags for config.Load
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}
