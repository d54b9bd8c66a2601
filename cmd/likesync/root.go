package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"likesync/pkg/ui"
)

var (
	// Version information, set with -ldflags at build time
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "likesync",
	Short: "Mirror the media of posts liked on X into a local directory",
	Long: `likesync polls the X API for the posts a set of accounts have liked and
downloads every photo, video and GIF attached to them.

Each file is named after the post it came from:

  {date}.{display name}.@{username}.{post id}.{media index}.{ext}

so a file already on disk is never downloaded twice, across restarts too.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetQuietMode(quiet)
		if noColor {
			ui.SetNoColor(true)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "likesync %s\ncommit: %s\nbuilt: %s\ngo: %s %s/%s\n",
			version, gitCommit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ~/.config/likesync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`likesync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}
