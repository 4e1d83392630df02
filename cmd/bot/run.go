package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"guild_scheduler_bot/internal/app"
	"guild_scheduler_bot/internal/domain/guildconfig"
	icontent "guild_scheduler_bot/internal/infra/content"
	"guild_scheduler_bot/internal/infra/database"
	idiscord "guild_scheduler_bot/internal/infra/discord"
	"guild_scheduler_bot/internal/infra/logger"
	"guild_scheduler_bot/internal/infra/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and run the scheduler until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBot(cmd.Context())
	},
}

func runBot(parent context.Context) error {
	if err := appCfg.RequireDiscord(); err != nil {
		return err
	}
	log := logger.Component("main")
	base := baseLogger()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	log.WithField("driver", db.Driver()).Info("Database connection established successfully.")

	configRepo := database.NewGuildConfigRepository(db, base)
	messageRepo := database.NewScheduledMessageRepository(db)

	zone, err := referenceZone()
	if err != nil {
		return err
	}

	session, err := idiscord.NewSession(appCfg.DiscordToken, appCfg.PlatformTimeout)
	if err != nil {
		return fmt.Errorf("could not create Discord session: %w", err)
	}
	client := idiscord.NewDiscordgoAdapter(session, float64(appCfg.SendRatePerSecond), appCfg.PlatformTimeout, base)

	engine := scheduler.NewEngine(base)
	registry := app.NewRegistry(engine, base)
	if appCfg.SheetsSpreadsheetID != "" {
		source := icontent.NewSheetsSource(appCfg.SheetsBaseURL, appCfg.SheetsSpreadsheetID, appCfg.SheetsAPIKey, appCfg.PlatformTimeout, base)
		words := app.NewWordOfTheDayServiceImpl(client, source, base)
		registry.Register(guildconfig.KindWordOfTheDay, words.Run)
	} else {
		log.Warn("SHEETS_SPREADSHEET_ID is not set; word of the day configs will not be scheduled")
	}

	dispatch := app.NewDispatchServiceImpl(messageRepo, client, zone, appCfg.DispatchConcurrency, appCfg.PlatformTimeout, base)
	greetings := app.NewGreetingServiceImpl(configRepo, client, base)
	idiscord.NewHandlers(greetings, client, appCfg.PlatformTimeout, base).Register(session)

	if err := session.Open(); err != nil {
		return fmt.Errorf("could not open Discord gateway: %w", err)
	}
	defer session.Close()

	sched := scheduler.NewScheduler(engine, dispatch, registry, configRepo, base, appCfg.PollCronSpec, appCfg.ResyncCronSpec)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	log.Info("Application setup complete. Bot and scheduler are running.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := registry.Watch(gctx, configRepo); err != nil {
			log.WithError(err).Error("Config change feed stopped; periodic resync still applies changes")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down application...")
		return nil
	})
	return g.Wait()
}
