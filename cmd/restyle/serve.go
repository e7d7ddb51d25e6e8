package main

import (
	"github.com/amp-labs/restyle/genapi"
	"github.com/amp-labs/restyle/logger"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulated generate endpoint",
		Long: "Run the simulated generate endpoint until interrupted. Generations are slow and " +
			"sometimes fail with \"Model overloaded\"; see RESTYLE_SIM_* for tuning.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Server
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}

			ctx := logger.WithSubsystem(cmd.Context(), "genapi")

			logger.Get(ctx).Info("starting generate endpoint",
				"latency_min", cfg.LatencyMin,
				"latency_max", cfg.LatencyMax,
				"overload_probability", cfg.OverloadProbability,
				"capacity", cfg.Capacity,
				"queue", cfg.QueueSize)

			return genapi.New(cfg).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default RESTYLE_LISTEN_ADDR or :8080)")

	return cmd
}
