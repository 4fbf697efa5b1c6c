package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/wharf/pkg/api"
	"github.com/cuemby/wharf/pkg/events"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/reconciler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wharf API server",
	Long: `Run the HTTP API: health probes, Prometheus metrics, release queries,
rollout triggers and a websocket stream of rollout events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("api-addr") {
			cfg.APIAddr, _ = cmd.Flags().GetString("api-addr")
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		metrics.RegisterComponent(metrics.ComponentStorage, true, cfg.DataDir)

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		metrics.RegisterComponent(metrics.ComponentEvents, true, "")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, err := newOrchestrator(ctx, cfg, store, broker)
		if err != nil {
			return err
		}

		recon := reconciler.NewReconciler(store, cfg.Rollout.StaleAfter, broker)
		recon.Start()
		defer recon.Stop()

		collector := metrics.NewCollector(store)
		collector.Start()
		defer collector.Stop()

		server := api.NewServer(store, orch, broker, cfg.AllowedOrigins)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.APIAddr)
		}()

		fmt.Printf("✓ API listening on %s\n", cfg.APIAddr)
		fmt.Println("Press Ctrl+C to stop.")

		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("API server error: %v", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown: %v", err)
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("api-addr", "", "Address for the HTTP API (default 127.0.0.1:8080)")
}
