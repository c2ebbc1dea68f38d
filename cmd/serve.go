package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/schc/internal/config"
	"firestige.xyz/schc/internal/gateway"
	"firestige.xyz/schc/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reassembly gateway",
	Long: `Listen for SCHC fragments over UDP, reassemble them and deliver complete
messages to the configured sinks. Stops on SIGINT or SIGTERM.

Examples:
  schc serve                    # defaults: ietf-draft-100 on :5683, console sink
  schc serve -c config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := log.Init(cfg.Log); err != nil {
			exitWithError("failed to initialize logging", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = runServe(ctx, cfg)
		log.Close()
		if err != nil {
			exitWithError("gateway failed", err)
		}
	},
}

func runServe(ctx context.Context, cfg *config.Config) error {
	g, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	return g.Run(ctx)
}
