package cmd

import (
	"os"
	"path/filepath"

	"ryco/internal/tui"

	"github.com/spf13/cobra"
)

// tuiLogFile receives log output while the composer owns the terminal
const tuiLogFile = "tui.log"

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive composer",
	Long: `Open the interactive composer.

Type "@Ryco <prompt>//" anywhere in the text. The answer streams into a panel
below; Enter inserts it in place of the command, ctrl+y copies it and Esc
discards it. Logs go to tui.log in the ryco home directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		client, err := a.dial(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		logFile, err := os.OpenFile(filepath.Join(a.rt.Home, tuiLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		defer logFile.Close()
		a.log.SetOutput(logFile)

		return tui.Run(cmd.Context(), client, a.rt.Debounce.Duration, a.log)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
