package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctfleet/instancer/internal/engine"
	"github.com/ctfleet/instancer/internal/settings"
)

func newImagesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "images",
		Short: "List images available on the configured engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImages(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "instancer.yaml", "path to instancer config file")
	return cmd
}

func runImages(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	st, err := settings.Load(gormDB)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if st.EngineEndpoint == "" {
		return fmt.Errorf("no engine endpoint configured")
	}

	ctx := context.Background()
	eng := engine.New(st.EngineEndpoint)
	if err := eng.Connect(ctx); err != nil {
		return fmt.Errorf("connect to engine at %s: %w", st.EngineEndpoint, err)
	}
	defer eng.Close()

	images, err := eng.Images(ctx)
	if err != nil {
		return err
	}
	for _, image := range images {
		fmt.Fprintln(out, image)
	}
	return nil
}
