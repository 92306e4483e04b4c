package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers",
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
		view := s.View()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Available providers:")
		for _, p := range a.registry.List() {
			activeMarker := " "
			if p.ID == view.ActiveProvider {
				activeMarker = "*"
			}
			keyInfo := "no key"
			if view.HasKey[p.ID] {
				keyInfo = "key set"
			}
			fmt.Fprintf(out, "%s %s: %s (Model: %s, %s)\n",
				activeMarker, p.ID, p.DisplayName, p.ResolveModel(view.SelectedModels[p.ID]), keyInfo)
		}
		fmt.Fprintf(out, "\n* indicates the active provider\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
