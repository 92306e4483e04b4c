package cmd

import (
	"fmt"

	"ryco/config/validation"

	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model <provider> [model]",
	Short: "List or select a provider's model",
	Long: `List a provider's models, or select one.

Without a model argument the supported models are listed and the one in use
is marked with *.`,
	Example: `  ryco model gemini
  ryco model gemini gemini-2.5-flash`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runModel,
}

var useCmd = &cobra.Command{
	Use:   "use <provider>",
	Short: "Switch the active provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		desc, err := a.registry.Get(args[0])
		if err != nil {
			return err
		}
		if err := a.settings.SetActiveProvider(desc.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Switched to %s\n", desc.DisplayName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(useCmd)
}

func runModel(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	desc, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 2 {
		if err := validation.ValidateModelInList(args[1], desc.Models); err != nil {
			return err
		}
		if err := a.settings.SetModel(desc.ID, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ %s will use %s\n", desc.DisplayName, args[1])
		return nil
	}

	s, err := a.settings.Load()
	if err != nil {
		return err
	}
	current := desc.ResolveModel(s.SelectedModels[desc.ID])

	fmt.Fprintf(out, "Models for %s:\n", desc.DisplayName)
	for _, m := range desc.Models {
		marker := " "
		if m == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, m)
	}
	fmt.Fprintf(out, "\n* indicates the model in use\n")
	return nil
}
