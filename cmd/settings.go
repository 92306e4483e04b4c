package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print settings as JSON (API keys are never shown)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		s, err := a.settings.Load()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(s.View(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <json>",
	Short: "Merge a partial JSON object into the settings",
	Long: `Merge a partial JSON object into the settings.

Only activeProvider, selectedModels, userDetails and theme can be set; keys
you leave out keep their value. API keys are set with 'ryco key set'.`,
	Example: `  ryco settings set '{"theme":"light"}'
  ryco settings set '{"userDetails":{"name":"Ada","role":"Engineer"}}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		if err := a.settings.Update([]byte(args[0])); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Settings updated")
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Roll settings back to the newest backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		restored, err := a.settings.Restore()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Settings restored from %s\n", restored)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(restoreCmd)
}
