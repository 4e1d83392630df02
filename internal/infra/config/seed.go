package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"guild_scheduler_bot/internal/domain/guildconfig"
)

// SeedFile is the YAML layout accepted by `config import`:
//
//	guilds:
//	  - guild_id: "1234"
//	    word_of_the_day: {enabled: true, channel_id: "42", time: "09:00", timezone: Europe/Madrid, language: spanish}
//	    welcome: {enabled: true, channel_id: "43", message: "Welcome {usermention}!"}
type SeedFile struct {
	Guilds []SeedGuild `yaml:"guilds"`
}

type SeedGuild struct {
	GuildID      string                       `yaml:"guild_id"`
	WordOfTheDay *guildconfig.RecurringConfig `yaml:"word_of_the_day"`
	Welcome      *guildconfig.WelcomeConfig   `yaml:"welcome"`
	Farewell     *guildconfig.FarewellConfig  `yaml:"farewell"`
}

// LoadSeedFile reads and flattens a seed file into documents.
func LoadSeedFile(path string) ([]guildconfig.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes seed YAML. Unknown keys are rejected so typos do not silently
// disable a job.
func ParseSeed(raw []byte) ([]guildconfig.Document, error) {
	var f SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	var docs []guildconfig.Document
	for i, g := range f.Guilds {
		if g.GuildID == "" {
			return nil, fmt.Errorf("guild entry %d: guild_id is required", i)
		}
		if g.WordOfTheDay != nil {
			g.WordOfTheDay.JobKind = guildconfig.KindWordOfTheDay
			docs = append(docs, guildconfig.Document{GuildID: g.GuildID, Config: g.WordOfTheDay})
		}
		if g.Welcome != nil {
			docs = append(docs, guildconfig.Document{GuildID: g.GuildID, Config: g.Welcome})
		}
		if g.Farewell != nil {
			docs = append(docs, guildconfig.Document{GuildID: g.GuildID, Config: g.Farewell})
		}
	}
	return docs, nil
}
