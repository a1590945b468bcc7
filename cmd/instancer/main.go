package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ctfleet/instancer/internal/config"
	"github.com/ctfleet/instancer/internal/db"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instancer",
		Short: "Instancer — per-player CTF challenge containers",
		Long:  "Instancer provisions ephemeral challenge containers on a Docker engine, one per user or team, with quotas and automatic expiry.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newImagesCmd())
	cmd.AddCommand(newPurgeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "instancer %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// connectFromConfig loads the config file and opens the platform database
// it points at.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.Driver == "sqlite" {
		return db.ConnectSQLite(cfg.DB.Path)
	}
	return db.Connect(cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
