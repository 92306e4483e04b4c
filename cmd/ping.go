package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ryco/internal/chat"
	"ryco/internal/utils"

	"github.com/spf13/cobra"
)

var pingJSON bool

var pingCmd = &cobra.Command{
	Use:   "ping <provider> [key]",
	Short: "Test an API key against a provider",
	Long: `Test an API key with a tiny non-streaming request.

Without a key argument the saved key for the provider is used.`,
	Example: `  ryco ping openai
  ryco ping gemini AIza...
  ryco ping --json nvidia`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPing,
}

func init() {
	pingCmd.Flags().BoolVar(&pingJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(pingCmd)
}

// pingResult is the --json output
type pingResult struct {
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	Name     string `json:"name,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Status   int    `json:"status,omitempty"`
	Category string `json:"category,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runPing(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	provider := args[0]

	var key string
	if len(args) == 2 {
		key = strings.TrimSpace(args[1])
	} else if key, err = a.storedKey(provider); err != nil {
		return err
	}

	tester, err := a.tester()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !pingJSON {
		fmt.Fprintf(out, "Testing %s with key %s...\n", provider, utils.MaskAPIKey(key))
	}

	start := time.Now()
	name, testErr := tester.TestConnection(cmd.Context(), provider, key)
	result := pingResult{
		Success:  testErr == nil,
		Provider: provider,
		Name:     name,
		Latency:  time.Since(start).Round(time.Millisecond).String(),
	}
	if testErr != nil {
		result.Error = testErr.Error()
		var perr *chat.ProviderError
		if errors.As(testErr, &perr) {
			result.Status = perr.Status
			result.Category = string(perr.Category)
		}
	}

	if pingJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		if testErr != nil {
			return fmt.Errorf("connection test failed")
		}
		return nil
	}

	if testErr != nil {
		return fmt.Errorf("connection test failed: %w", testErr)
	}
	fmt.Fprintf(out, "✓ Connected to %s (%s)\n", name, result.Latency)
	return nil
}
