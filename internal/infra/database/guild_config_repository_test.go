package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"guild_scheduler_bot/internal/domain/guildconfig"
)

func TestGuildConfigRepository_SetGetMerge(t *testing.T) {
	ctx := context.Background()
	repo := NewGuildConfigRepository(newTestDB(t), newTestLogger())

	full := &guildconfig.RecurringConfig{
		Enabled: true, ChannelID: "42", Time: "08:30", Timezone: "Europe/Berlin",
		Language: "de", Template: "{word}",
	}
	if err := repo.Set(ctx, "g1", full, false); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A partial update keeps fields it does not mention.
	if err := repo.Set(ctx, "g1", &guildconfig.RecurringConfig{Enabled: true, Time: "09:00"}, true); err != nil {
		t.Fatalf("merge: %v", err)
	}

	cfg, err := repo.Get(ctx, "g1", guildconfig.KindWordOfTheDay)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rc := cfg.(*guildconfig.RecurringConfig)
	if rc.Time != "09:00" || rc.ChannelID != "42" || rc.Language != "de" || rc.Template != "{word}" {
		t.Fatalf("merge lost fields: %+v", rc)
	}

	// Without merge the document is replaced.
	if err := repo.Set(ctx, "g1", &guildconfig.RecurringConfig{Enabled: false}, false); err != nil {
		t.Fatalf("replace: %v", err)
	}
	cfg, _ = repo.Get(ctx, "g1", guildconfig.KindWordOfTheDay)
	if rc := cfg.(*guildconfig.RecurringConfig); rc.Enabled || rc.ChannelID != "" {
		t.Fatalf("replace kept old fields: %+v", rc)
	}
}

func TestGuildConfigRepository_ListAllAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewGuildConfigRepository(newTestDB(t), newTestLogger())

	_ = repo.Set(ctx, "g1", &guildconfig.RecurringConfig{Enabled: true, ChannelID: "1", Time: "10:00"}, true)
	_ = repo.Set(ctx, "g1", &guildconfig.WelcomeConfig{Enabled: true, ChannelID: "1", Message: "hi {usermention}"}, true)
	_ = repo.Set(ctx, "g2", &guildconfig.FarewellConfig{Enabled: true, ChannelID: "2", Message: "bye {username}"}, true)

	docs, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("want 3 documents, got %d", len(docs))
	}

	if err := repo.Delete(ctx, "g1", guildconfig.KindWelcome); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "g1", guildconfig.KindWelcome); !errors.Is(err, guildconfig.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "g1", guildconfig.KindWelcome); !errors.Is(err, guildconfig.ErrNotFound) {
		t.Fatalf("want ErrNotFound for second delete, got %v", err)
	}
}

func TestGuildConfigRepository_SubscribeDeliversCommittedWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := NewGuildConfigRepository(newTestDB(t), newTestLogger())

	changes := make(chan guildconfig.Change, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = repo.Subscribe(ctx, func(c guildconfig.Change) { changes <- c })
	}()

	// The opening resync means the subscription is live.
	select {
	case c := <-changes:
		if !c.Resync {
			t.Fatalf("first change must be a resync, got %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never opened")
	}

	if err := repo.Set(ctx, "g1", &guildconfig.RecurringConfig{Enabled: true, ChannelID: "1", Time: "10:00"}, true); err != nil {
		t.Fatalf("set: %v", err)
	}

	select {
	case c := <-changes:
		if c.GuildID != "g1" || c.Kind != guildconfig.KindWordOfTheDay || c.Config == nil {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}

	if err := repo.Delete(ctx, "g1", guildconfig.KindWordOfTheDay); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case c := <-changes:
		if c.Config != nil {
			t.Fatalf("delete should deliver nil config, got %+v", c.Config)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delete change delivered")
	}

	cancel()
	<-done
}
