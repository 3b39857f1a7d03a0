package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/relay"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay that pairs rooms and forwards call signals.

Endpoints:
  /ws      WebSocket signaling (?codec=json|msgpack)
  /health  liveness probe

Examples:
  warpcall serve
  warpcall serve --addr :9000
  RELAY_ADDR=:9000 warpcall serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{RelayAddr: flagServeAddr})
		if err != nil {
			return err
		}
		return relay.NewServer(cfg.RelayAddr, slog.Default()).ListenAndServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (default \":8080\")")
}
