package cmd

import (
	"fmt"
	"strings"

	"ryco/config/validation"
	"ryco/internal/providers"
	"ryco/internal/utils"

	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage provider API keys",
}

var keySetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Encrypt and save an API key",
	Long: `Encrypt and save an API key for a provider.

The key is sealed with AES-GCM under the master key and stored in
settings.json. Use 'ryco ping <provider>' to check it afterwards.`,
	Example: "  ryco key set openai sk-...",
	Args:    cobra.ExactArgs(2),
	RunE:    runKeySet,
}

func init() {
	keyCmd.AddCommand(keySetCmd)
	rootCmd.AddCommand(keyCmd)
}

func runKeySet(cmd *cobra.Command, args []string) error {
	provider, key := args[0], strings.TrimSpace(args[1])

	a, err := bootstrap()
	if err != nil {
		return err
	}
	if !a.registry.Has(provider) {
		return fmt.Errorf("%w: %s (available: %s)", providers.ErrUnknownProvider, provider, strings.Join(a.registry.IDs(), ", "))
	}
	if err := validation.ValidateAPIKey(key); err != nil {
		return err
	}

	secret, err := a.keys.Encrypt(key)
	if err != nil {
		return err
	}
	if err := a.settings.SaveAPIKey(provider, secret); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved API key %s for %s\n", utils.MaskAPIKey(key), provider)
	return nil
}
