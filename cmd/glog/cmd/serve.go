/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/api"
	"github.com/ssargent/glogstore/pkg/config"
	"github.com/ssargent/glogstore/pkg/store"
)

// serverConfig turns the config file into API server options.
func serverConfig(cfg *config.Config) (api.ServerConfig, error) {
	key, err := cfg.PrivateKey()
	if err != nil {
		return api.ServerConfig{}, err
	}
	sc := api.ServerConfig{
		Port:       cfg.Server.Port,
		Bind:       cfg.Server.Bind,
		APIKey:     cfg.Server.APIKey,
		PrivateKey: key,
	}
	for _, s := range cfg.Streams {
		sc.Streams = append(sc.Streams, cfg.StoreConfig(s))
	}
	return sc, nil
}

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Serve the streams of the configuration file over HTTP until interrupted.

Routes live under /api/v1/streams/{proto} and require X-API-Key when
server.api_key is set. Prometheus metrics are served at /metrics.

Examples:
  glog serve
  glog serve --config ./glog.yaml --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("%w (run 'glog init' first)", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind, _ = cmd.Flags().GetString("bind")
			}

			sc, err := serverConfig(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := container.NewRegistry(store.WithMaintenanceInterval(cfg.Server.MaintenanceInterval))
			defer registry.Close()

			starter := container.GetServerFactory().CreateServerStarter()
			return starter.StartServer(ctx, registry, sc, container.Logger())
		},
	}

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides config)")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to (overrides config)")
	return serveCmd
}
