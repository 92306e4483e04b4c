package cmd

import (
	"fmt"

	"ryco/internal/daemon"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay status and the active provider",
	Long:  "Show whether the relay is running, and the active provider, model and key state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if pid, running := daemon.Status(daemon.PIDPath(a.rt.Home)); running {
			fmt.Fprintf(out, "Relay: running (pid %d) on %s\n", pid, a.rt.ListenAddr)
		} else {
			fmt.Fprintln(out, "Relay: not running")
		}

		s, err := a.settings.Load()
		if err != nil {
			return err
		}
		view := s.View()

		fmt.Fprintf(out, "Home: %s\n", a.rt.Home)
		if desc, err := a.registry.Get(view.ActiveProvider); err == nil {
			fmt.Fprintf(out, "Provider: %s\n", desc.DisplayName)
			fmt.Fprintf(out, "Model: %s\n", desc.ResolveModel(view.SelectedModels[desc.ID]))
		} else {
			fmt.Fprintf(out, "Provider: %s (unknown)\n", view.ActiveProvider)
		}
		if view.HasKey[view.ActiveProvider] {
			fmt.Fprintln(out, "API key: set")
		} else {
			fmt.Fprintln(out, "API key: not set")
			fmt.Fprintf(out, "\n💡 Run 'ryco key set %s <key>' to add one\n", view.ActiveProvider)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
