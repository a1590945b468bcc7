package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctfleet/instancer/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and update engine settings",
	}

	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored engine settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsShow(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "instancer.yaml", "path to instancer config file")
	return cmd
}

func runSettingsShow(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	st, err := settings.Load(gormDB)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	values := st.ToMap()
	for _, key := range settings.Keys {
		fmt.Fprintf(out, "%s=%s\n", key, values[key])
	}
	return nil
}

func newSettingsSetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one engine setting",
		Long: `Stores a single setting value. A running server picks the change up on
its next settings update; restart the server to apply it immediately.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSet(cmd, configPath, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "instancer.yaml", "path to instancer config file")
	return cmd
}

func runSettingsSet(cmd *cobra.Command, configPath, key, value string) error {
	out := cmd.OutOrStdout()

	known := false
	for _, k := range settings.Keys {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown setting %q", key)
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := settings.Save(gormDB, map[string]string{key: value}); err != nil {
		return fmt.Errorf("save setting: %w", err)
	}
	fmt.Fprintf(out, "%s=%s\n", key, value)
	return nil
}
