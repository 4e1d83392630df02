package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"guild_scheduler_bot/internal/app"
	"guild_scheduler_bot/internal/infra/database"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage one-off scheduled messages",
}

func init() {
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleShowCmd)
}

var (
	scheduleChannel string
	scheduleDate    string
	scheduleTime    string
	scheduleMessage string
)

var scheduleAddCmd = &cobra.Command{
	Use:   "add <guild-id>",
	Short: "Queue a message for a date and time in the reference timezone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		zone, err := referenceZone()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		svc := app.NewScheduleServiceImpl(database.NewScheduledMessageRepository(db), zone, baseLogger())
		m, err := svc.Enqueue(cmd.Context(), app.ScheduleRequest{
			GuildID:   args[0],
			ChannelID: scheduleChannel,
			Template:  scheduleMessage,
			Date:      scheduleDate,
			Time:      scheduleTime,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Scheduled %s for %s %s (%s) in channel %s\n", m.ID, m.Date, m.Time, zone, m.ChannelID)
		return nil
	},
}

func init() {
	f := scheduleAddCmd.Flags()
	f.StringVar(&scheduleChannel, "channel", "", "Channel ID to post in")
	f.StringVar(&scheduleDate, "date", "", "Date, YYYY-MM-DD")
	f.StringVar(&scheduleTime, "time", "", "Time, HH:MM (24h)")
	f.StringVarP(&scheduleMessage, "message", "m", "", "Message template")
	_ = scheduleAddCmd.MarkFlagRequired("channel")
	_ = scheduleAddCmd.MarkFlagRequired("date")
	_ = scheduleAddCmd.MarkFlagRequired("time")
	_ = scheduleAddCmd.MarkFlagRequired("message")
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show <message-id>",
	Short: "Show a scheduled message and its delivery status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		m, err := database.NewScheduledMessageRepository(db).GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("ID:       %s\nGuild:    %s\nChannel:  %s\nDue:      %s %s\nStatus:   %s\n", m.ID, m.GuildID, m.ChannelID, m.Date, m.Time, m.Status)
		if m.SentAt != nil {
			fmt.Printf("Sent at:  %s\n", m.SentAt.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Printf("Template: %s\n", m.Template)
		return nil
	},
}
