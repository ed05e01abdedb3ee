package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kvedit/internal/dashboard"
	"kvedit/internal/logging"
	"kvedit/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the table API and dashboard event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bind") {
				cfg.Paths.APIBind = bind
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.NewFromConfig(cfg, "stderr")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			hub := dashboard.NewHub(logger, cfg.Dashboard.AllowedOrigins...)
			bridge := dashboard.NewBridge(nil)
			env, err := buildEnv(signalCtx, cfg, logger, hub, bridge)
			if err != nil {
				return err
			}
			defer env.Close()

			srv, err := server.New(server.Options{
				Config:    cfg,
				Service:   env.service,
				Store:     env.client,
				Hub:       hub,
				Bridge:    bridge,
				History:   env.history,
				Snapshots: env.snapshots,
				Metrics:   server.NewMetrics(hub.Count),
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			if err := srv.Start(signalCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kvedit serving %s on http://%s\n", cfg.Collection.Name, srv.Addr())

			<-signalCtx.Done()
			logger.Info("kvedit server shutting down")
			srv.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to paths.api_bind)")
	return cmd
}
