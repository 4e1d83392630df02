package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"guild_scheduler_bot/internal/app"
	"guild_scheduler_bot/internal/domain/guildconfig"
	"guild_scheduler_bot/internal/infra/config"
	"guild_scheduler_bot/internal/infra/database"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage per-guild configuration",
}

func init() {
	configCmd.AddCommand(configSetWordCmd)
	configCmd.AddCommand(configSetWelcomeCmd)
	configCmd.AddCommand(configSetFarewellCmd)
	configCmd.AddCommand(configDisableCmd)
	configCmd.AddCommand(configRemoveCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configImportCmd)
}

// withAdmin opens the store for one CLI call. The running bot picks the write up
// from the change feed or its periodic resync.
func withAdmin(cmd *cobra.Command, fn func(*app.AdminService) error) error {
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()
	repo := database.NewGuildConfigRepository(db, baseLogger())
	return fn(app.NewAdminService(repo, nil, baseLogger()))
}

// ---- set-wotd --------------------------------------------------------------

var (
	wordChannel  string
	wordTime     string
	wordTimezone string
	wordLanguage string
	wordTemplate string
	wordDisable  bool
)

var configSetWordCmd = &cobra.Command{
	Use:   "set-wotd <guild-id>",
	Short: "Create or update the word of the day for a guild",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := &guildconfig.RecurringConfig{
			JobKind:   guildconfig.KindWordOfTheDay,
			Enabled:   !wordDisable,
			ChannelID: wordChannel,
			Time:      wordTime,
			Timezone:  wordTimezone,
			Language:  wordLanguage,
			Template:  wordTemplate,
		}
		return withAdmin(cmd, func(svc *app.AdminService) error {
			saved, err := svc.SaveConfig(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			printDocument(cmd.Context(), guildconfig.Document{GuildID: args[0], Config: saved})
			return nil
		})
	},
}

func init() {
	f := configSetWordCmd.Flags()
	f.StringVar(&wordChannel, "channel", "", "Channel ID to post in")
	f.StringVar(&wordTime, "time", "", "Daily post time, HH:MM (24h)")
	f.StringVar(&wordTimezone, "timezone", "", "IANA timezone for --time (default UTC)")
	f.StringVar(&wordLanguage, "language", "", "Word list (sheet tab) to draw from")
	f.StringVar(&wordTemplate, "template", "", "Message template; {word} {meaning} {example} {language} and mention tokens")
	f.BoolVar(&wordDisable, "disable", false, "Store the settings but do not post")
}

// ---- set-welcome / set-farewell --------------------------------------------

var (
	greetChannel string
	greetMessage string
	greetDisable bool
)

var configSetWelcomeCmd = &cobra.Command{
	Use:   "set-welcome <guild-id>",
	Short: "Configure the message posted when a member joins",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return saveGreeting(cmd, args[0], &guildconfig.WelcomeConfig{Enabled: !greetDisable, ChannelID: greetChannel, Message: greetMessage})
	},
}

var configSetFarewellCmd = &cobra.Command{
	Use:   "set-farewell <guild-id>",
	Short: "Configure the message posted when a member leaves",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return saveGreeting(cmd, args[0], &guildconfig.FarewellConfig{Enabled: !greetDisable, ChannelID: greetChannel, Message: greetMessage})
	},
}

func saveGreeting(cmd *cobra.Command, guildID string, patch guildconfig.Config) error {
	return withAdmin(cmd, func(svc *app.AdminService) error {
		saved, err := svc.SaveConfig(cmd.Context(), guildID, patch)
		if err != nil {
			return err
		}
		printDocument(cmd.Context(), guildconfig.Document{GuildID: guildID, Config: saved})
		return nil
	})
}

func init() {
	for _, c := range []*cobra.Command{configSetWelcomeCmd, configSetFarewellCmd} {
		c.Flags().StringVar(&greetChannel, "channel", "", "Channel ID to post in")
		c.Flags().StringVar(&greetMessage, "message", "", "Message template; {username} {usermention} {server} and mention tokens")
		c.Flags().BoolVar(&greetDisable, "disable", false, "Store the settings but do not post")
	}
}

// ---- disable / remove ------------------------------------------------------

var configDisableCmd = &cobra.Command{
	Use:   "disable <guild-id> <kind>",
	Short: "Turn a config off, keeping its settings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[1])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(svc *app.AdminService) error {
			if err := svc.Disable(cmd.Context(), args[0], kind); err != nil {
				return err
			}
			fmt.Printf("✓ Disabled %s for guild %s\n", kind, args[0])
			return nil
		})
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <guild-id> <kind>",
	Short: "Delete a config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[1])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(svc *app.AdminService) error {
			if err := svc.Remove(cmd.Context(), args[0], kind); err != nil {
				return err
			}
			fmt.Printf("✓ Removed %s for guild %s\n", kind, args[0])
			return nil
		})
	},
}

func parseKind(s string) (guildconfig.Kind, error) {
	kind := guildconfig.Kind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown kind %q (want %s, %s or %s)", s, guildconfig.KindWordOfTheDay, guildconfig.KindWelcome, guildconfig.KindFarewell)
	}
	return kind, nil
}

// ---- list ------------------------------------------------------------------

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored configs and when each recurring job fires next",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, func(svc *app.AdminService) error {
			docs, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No guild configs.")
				return nil
			}
			preview := previewSchedule(cmd.Context(), docs, time.Now())
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GUILD\tKIND\tSTATUS\tCHANNEL\tSCHEDULE\tNEXT")
			for _, doc := range docs {
				fmt.Fprintln(w, documentRow(doc, preview))
			}
			return w.Flush()
		})
	},
}

func printDocument(ctx context.Context, doc guildconfig.Document) {
	preview := previewSchedule(ctx, []guildconfig.Document{doc}, time.Now())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUILD\tKIND\tSTATUS\tCHANNEL\tSCHEDULE\tNEXT")
	fmt.Fprintln(w, documentRow(doc, preview))
	_ = w.Flush()
}

// schedulePreview holds the triggers a running bot derives from a set of documents.
type schedulePreview struct {
	active map[app.JobKey]app.ActiveJob
	errs   map[app.JobKey]error
}

// previewSchedule reconciles docs into a registry whose engine is never started.
func previewSchedule(ctx context.Context, docs []guildconfig.Document, now time.Time) schedulePreview {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	registry := app.NewRegistry(cron.New(), logrus.NewEntry(quiet))
	for _, kind := range guildconfig.RecurringKinds {
		registry.Register(kind, func(context.Context, string, guildconfig.RecurringConfig) {})
	}

	p := schedulePreview{active: make(map[app.JobKey]app.ActiveJob), errs: make(map[app.JobKey]error)}
	for _, doc := range docs {
		rc, ok := doc.Config.(*guildconfig.RecurringConfig)
		if !ok {
			continue
		}
		if err := registry.Reconcile(ctx, doc.GuildID, rc.Kind(), rc); err != nil {
			p.errs[app.JobKey{GuildID: doc.GuildID, Kind: rc.Kind()}] = err
		}
	}
	for _, job := range registry.ActiveAt(now) {
		p.active[job.Key] = job
	}
	return p
}

func documentRow(doc guildconfig.Document, preview schedulePreview) string {
	status := func(enabled bool) string {
		if enabled {
			return "enabled"
		}
		return "disabled"
	}
	switch c := doc.Config.(type) {
	case *guildconfig.RecurringConfig:
		schedule, next := "-", "-"
		if c.Time != "" {
			tz := c.Timezone
			if tz == "" {
				tz = "UTC"
			}
			schedule = c.Time + " " + tz
		}
		key := app.JobKey{GuildID: doc.GuildID, Kind: c.Kind()}
		if job, ok := preview.active[key]; ok && !job.NextFire.IsZero() {
			next = job.NextFire.Format("2006-01-02 15:04 MST") + " (" + humanize.Time(job.NextFire) + ")"
		} else if err, ok := preview.errs[key]; ok {
			next = "invalid: " + err.Error()
		}
		return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s", doc.GuildID, c.Kind(), status(c.Enabled), orDash(c.ChannelID), schedule, next)
	case *guildconfig.WelcomeConfig:
		return fmt.Sprintf("%s\t%s\t%s\t%s\ton join\t-", doc.GuildID, c.Kind(), status(c.Enabled), orDash(c.ChannelID))
	case *guildconfig.FarewellConfig:
		return fmt.Sprintf("%s\t%s\t%s\t%s\ton leave\t-", doc.GuildID, c.Kind(), status(c.Enabled), orDash(c.ChannelID))
	}
	return doc.GuildID + "\t?\t-\t-\t-\t-"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ---- import ----------------------------------------------------------------

var configImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Replace guild configs with the contents of a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := config.LoadSeedFile(args[0])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(svc *app.AdminService) error {
			n, err := svc.Import(cmd.Context(), docs)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Imported %d config(s) from %s\n", n, args[0])
			return nil
		})
	},
}
