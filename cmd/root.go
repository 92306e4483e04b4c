package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// Version information
var (
	version string
	commit  string
	date    string
)

// SetVersionInfo sets the version information
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Global flags
var (
	homeDir  string
	logLevel string
	relayURL string
)

var rootCmd = &cobra.Command{
	Use:   "ryco",
	Short: "Inline AI writing assistant",
	Long: `Ryco answers "@Ryco <prompt>//" commands typed into text.

Run 'ryco serve' once to start the relay that holds your API keys, then use
'ryco tui', 'ryco watch <dir>' or 'ryco ask <prompt>' to ask it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "ryco home directory (default $RYCO_HOME or ~/.config/ryco)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", "", "relay address or ws:// URL (default listen_addr)")
}

// Execute executes the root command
func Execute() error {
	rootCmd.Version = version

	rootCmd.SetVersionTemplate(`ryco {{.Version}}
Commit: ` + commit + `
Date: ` + date + `
`)

	return rootCmd.ExecuteContext(context.Background())
}
