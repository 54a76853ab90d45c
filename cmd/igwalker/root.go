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
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igwalker",
	Short: "A resilient Instagram profile content walker",
	Long: `igwalker walks Instagram profiles through their post and reel modals,
collecting content URLs into a durable checkpoint store and emitting a
JSON report on stdout.

Features:
  - Secure credential storage using system keychain
  - Durable per-profile checkpoints with crash-safe resume
  - Smart rate limiting with randomized delays
  - Automatic retry with exponential backoff and failure classification
  - Session persistence and reuse across runs
  - One isolated worker per profile`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Quiet mode leaves stdout to the JSON report alone.
		if quiet {
			logLevel = "disabled"
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
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .igwalker.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress logs, emit only the JSON report")

	rootCmd.SetVersionTemplate(`igwalker {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
