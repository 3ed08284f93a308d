// Package cmd implements the ossgard command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile     string
	profileName string
	verbose     bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ossgard",
	Short: "Duplicate pull request detection for busy maintainers",
	Long: `ossgard scans a repository's open pull requests and surfaces groups
of duplicates: PRs that solve the same problem such that merging one
makes the others redundant. Each group is ranked by which PR deserves
the merge.

Get started:
  ossgard repo add owner/name   Track a repository
  ossgard scan owner/name       Run a one-shot duplicate scan
  ossgard serve                 Start the daemon with REST API and schedules`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.ossgard/config.json)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "",
		"scan profile from ~/.ossgard/profiles to apply")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		serveCmd,
		scanCmd,
		repoCmd,
		configCmd,
	)
}

func initLogging() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
