package cmd

import (
	"ryco/internal/daemon"

	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay that holds API keys and calls providers",
	Long: `Run the relay in the foreground.

The relay owns the API keys and talks to providers. 'ryco tui', 'ryco watch'
and 'ryco ask' connect to it. Stop it with Ctrl+C or SIGTERM; SIGHUP reloads
settings.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default listen_addr from ryco.toml)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	// the master key exists before the first tab connects
	if _, err := a.keys.GetOrCreateKey(); err != nil {
		return err
	}

	dispatcher, err := a.dispatcher()
	if err != nil {
		return err
	}

	addr := a.rt.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}

	d := daemon.New(a.rt.Home, addr, a.settings.Path(), a.settings, dispatcher, a.log)
	return d.Run(cmd.Context())
}
