package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"guild_scheduler_bot/internal/domain/guildconfig"
	"guild_scheduler_bot/internal/infra/config"
	"guild_scheduler_bot/internal/infra/database"
	"guild_scheduler_bot/internal/infra/logger"
)

// appCfg is loaded once before any subcommand runs.
var appCfg *config.AppConfig

var rootCmd = &cobra.Command{
	Use:           "guild-scheduler-bot",
	Short:         "Scheduled announcements and word of the day for Discord guilds",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("could not load application configuration: %w", err)
		}
		appCfg = cfg
		logger.Init(cfg)
		logger.Log.WithFields(logrus.Fields{
			"log_level":   cfg.LogLevel,
			"environment": cfg.Environment,
			"driver":      cfg.DatabaseDriver,
		}).Debug("Configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func baseLogger() *logrus.Entry {
	return logrus.NewEntry(logger.Log)
}

func openStore(ctx context.Context) (*database.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	db, err := database.Open(ctx, appCfg.DatabaseDriver, appCfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	return db, nil
}

func referenceZone() (*time.Location, error) {
	return guildconfig.LoadTimezone(appCfg.ReferenceTimezone)
}
