package config

import (
	"os"
	"path/filepath"
	"testing"

	"guild_scheduler_bot/internal/domain/guildconfig"
)

const sampleSeed = `
guilds:
  - guild_id: "1001"
    word_of_the_day:
      enabled: true
      channel_id: "42"
      time: "09:00"
      timezone: Europe/Madrid
      language: spanish
    welcome:
      enabled: true
      channel_id: "43"
      message: "Welcome {usermention}!"
  - guild_id: "1002"
    farewell:
      enabled: false
`

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(sampleSeed), 0o600); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("want 3 documents, got %d", len(docs))
	}
	rc, ok := docs[0].Config.(*guildconfig.RecurringConfig)
	if !ok || docs[0].GuildID != "1001" || rc.Kind() != guildconfig.KindWordOfTheDay || rc.Timezone != "Europe/Madrid" || !rc.Schedulable() {
		t.Fatalf("unexpected first document %+v", docs[0])
	}
	if w, ok := docs[1].Config.(*guildconfig.WelcomeConfig); !ok || w.Message != "Welcome {usermention}!" {
		t.Fatalf("unexpected welcome %+v", docs[1].Config)
	}
	if f, ok := docs[2].Config.(*guildconfig.FarewellConfig); !ok || f.Enabled || docs[2].GuildID != "1002" {
		t.Fatalf("unexpected farewell %+v", docs[2].Config)
	}
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "guilds:\n  - guild_id: \"1\"\n    word_of_the_day:\n      enabeld: true\n"},
		{"missing guild id", "guilds:\n  - welcome:\n      enabled: true\n"},
		{"not yaml", "guilds: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSeed([]byte(tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
