package app

import (
	"context"
	"errors"
	"testing"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/guildconfig"
)

func TestAdminService_SaveConfigSchedules(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConfigRepo()
	registry, _, _ := newTestRegistry()
	svc := NewAdminService(repo, registry, newTestLogger())

	if _, err := svc.SaveConfig(ctx, "g1", wotd("c1", "09:00", "Europe/Berlin")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if registry.Len() != 1 {
		t.Fatalf("want 1 trigger, got %d", registry.Len())
	}

	// Partial update keeps the channel and language.
	merged, err := svc.SaveConfig(ctx, "g1", &guildconfig.RecurringConfig{Enabled: true, Time: "10:30"})
	if err != nil {
		t.Fatalf("partial save: %v", err)
	}
	rc := merged.(*guildconfig.RecurringConfig)
	if rc.ChannelID != "c1" || rc.Language != "english" || rc.Time != "10:30" {
		t.Fatalf("unexpected merge %+v", rc)
	}
	if spec := registry.Active()[0].Spec; spec != "CRON_TZ=Europe/Berlin 30 10 * * *" {
		t.Fatalf("trigger not updated, spec %q", spec)
	}

	if err := svc.Disable(ctx, "g1", guildconfig.KindWordOfTheDay); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if registry.Len() != 0 {
		t.Fatal("disable must remove the trigger")
	}
	stored, _ := repo.Get(ctx, "g1", guildconfig.KindWordOfTheDay)
	if s := stored.(*guildconfig.RecurringConfig); s.Enabled || s.ChannelID != "c1" {
		t.Fatalf("disable must keep settings, got %+v", s)
	}
}

func TestAdminService_InvalidConfigIsNotWritten(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConfigRepo()
	registry, _, _ := newTestRegistry()
	svc := NewAdminService(repo, registry, newTestLogger())

	_, _ = svc.SaveConfig(ctx, "g1", wotd("c1", "09:00", "UTC"))
	writes := repo.sets

	_, err := svc.SaveConfig(ctx, "g1", &guildconfig.RecurringConfig{Enabled: true, Timezone: "Not/AZone"})
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
	if repo.sets != writes {
		t.Fatal("invalid config must not be written")
	}
	stored, _ := repo.Get(ctx, "g1", guildconfig.KindWordOfTheDay)
	if stored.(*guildconfig.RecurringConfig).Timezone != "UTC" {
		t.Fatal("stored config changed")
	}
	if registry.Len() != 1 {
		t.Fatal("existing trigger must stay")
	}
}

func TestAdminService_WithoutReconciler(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConfigRepo()
	svc := NewAdminService(repo, nil, newTestLogger())

	if _, err := svc.SaveConfig(ctx, "g1", &guildconfig.WelcomeConfig{Enabled: true, ChannelID: "c1"}); err != nil {
		t.Fatalf("save welcome: %v", err)
	}
	if _, err := svc.SaveConfig(ctx, "g1", wotd("c1", "09:00", "")); err != nil {
		t.Fatalf("save recurring without scheduler: %v", err)
	}
	if err := svc.Remove(ctx, "g1", guildconfig.KindWelcome); err != nil {
		t.Fatalf("remove: %v", err)
	}
	docs, _ := svc.List(ctx)
	if len(docs) != 1 {
		t.Fatalf("want 1 document left, got %d", len(docs))
	}
}

func TestAdminService_ImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConfigRepo()
	registry, _, _ := newTestRegistry()
	svc := NewAdminService(repo, registry, newTestLogger())

	bad := []guildconfig.Document{
		{GuildID: "g1", Config: wotd("c1", "09:00", "UTC")},
		{GuildID: "g2", Config: &guildconfig.FarewellConfig{Enabled: true}},
	}
	if _, err := svc.Import(ctx, bad); err == nil {
		t.Fatal("expected validation error")
	}
	if repo.sets != 0 {
		t.Fatal("nothing may be written when one document is invalid")
	}

	good := []guildconfig.Document{
		{GuildID: "g1", Config: wotd("c1", "09:00", "UTC")},
		{GuildID: "g2", Config: &guildconfig.FarewellConfig{Enabled: true, ChannelID: "c3"}},
	}
	n, err := svc.Import(ctx, good)
	if err != nil || n != 2 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	if registry.Len() != 1 {
		t.Fatalf("imported recurring config must be scheduled, got %d", registry.Len())
	}
}
