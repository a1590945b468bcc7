package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctfleet/instancer/internal/engine"
	"github.com/ctfleet/instancer/internal/lifecycle"
	"github.com/ctfleet/instancer/internal/ports"
	"github.com/ctfleet/instancer/internal/settings"
)

func newPurgeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Kill every tracked instance and clear its record",
		Long:  "Kills every instance the registry knows about, best effort, and removes the records. Useful between CTF rounds.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "instancer.yaml", "path to instancer config file")
	return cmd
}

func runPurge(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	st, err := settings.Load(gormDB)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	ctx := context.Background()
	m := lifecycle.New(gormDB, engine.New(st.EngineEndpoint), ports.New(), cfg.Quota.MaxPerUser)
	defer m.Shutdown()

	if err := m.ApplySettings(ctx, st); err != nil {
		fmt.Fprintf(out, "Warning: %v\n", err)
	}

	purged := m.PurgeAll(ctx)
	fmt.Fprintf(out, "Purged %d instance(s)\n", purged)
	return nil
}
