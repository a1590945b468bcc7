package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctfleet/instancer/internal/api"
	"github.com/ctfleet/instancer/internal/db"
	"github.com/ctfleet/instancer/internal/engine"
	"github.com/ctfleet/instancer/internal/lifecycle"
	"github.com/ctfleet/instancer/internal/ports"
	"github.com/ctfleet/instancer/internal/settings"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the instancer API server",
		Long:  "Connects to the platform database and the configured Docker engine, starts the expiry scheduler, and serves the instance API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "instancer.yaml", "path to instancer config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, portOverride int) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	st, err := settings.Load(gormDB)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	m := lifecycle.New(gormDB, engine.New(st.EngineEndpoint), ports.New(), cfg.Quota.MaxPerUser)
	defer m.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.ApplySettings(ctx, st); err != nil {
		// The server still comes up so the engine endpoint can be fixed
		// over the settings API; requests fail until it is.
		fmt.Fprintf(out, "Warning: %v\n", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	port := cfg.Listen.Port
	if portOverride != 0 {
		port = portOverride
	}

	return api.Start(ctx, api.StartOpts{
		Manager: m,
		DB:      gormDB,
		Port:    port,
		Out:     out,
	})
}
