package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"guild_scheduler_bot/internal/domain/guildconfig"
)

func TestDocumentRow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	doc := guildconfig.Document{GuildID: "g1", Config: &guildconfig.RecurringConfig{
		Enabled: true, ChannelID: "c1", Time: "09:30", Timezone: "UTC",
	}}
	row := documentRow(doc, previewSchedule(ctx, []guildconfig.Document{doc}, now))
	cols := strings.Split(row, "\t")
	if len(cols) != 6 {
		t.Fatalf("want 6 columns, got %q", row)
	}
	if cols[1] != "word_of_the_day" || cols[2] != "enabled" || cols[4] != "09:30 UTC" {
		t.Fatalf("unexpected row %q", row)
	}
	if !strings.HasPrefix(cols[5], "2026-05-10 09:30 UTC") {
		t.Fatalf("unexpected next fire %q", cols[5])
	}

	welcome := guildconfig.Document{GuildID: "g1", Config: &guildconfig.WelcomeConfig{}}
	row = documentRow(welcome, previewSchedule(ctx, []guildconfig.Document{welcome}, now))
	if !strings.Contains(row, "disabled\t-\ton join") {
		t.Fatalf("unexpected welcome row %q", row)
	}
}

func TestDocumentRow_InvalidSchedule(t *testing.T) {
	doc := guildconfig.Document{GuildID: "g2", Config: &guildconfig.RecurringConfig{
		Enabled: true, ChannelID: "c1", Time: "09:30", Timezone: "Mars/Olympus",
	}}
	row := documentRow(doc, previewSchedule(context.Background(), []guildconfig.Document{doc}, time.Now()))
	if cols := strings.Split(row, "\t"); !strings.HasPrefix(cols[5], "invalid: ") {
		t.Fatalf("want invalid marker, got %q", row)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := parseKind("farewell"); err != nil || k != guildconfig.KindFarewell {
		t.Fatalf("got %q, %v", k, err)
	}
	if _, err := parseKind("birthday"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
