// internal/domain/guildconfig/config.go
package guildconfig

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one configuration document of a guild.
type Kind string

const (
	KindWordOfTheDay Kind = "word_of_the_day"
	KindWelcome      Kind = "welcome"
	KindFarewell     Kind = "farewell"
)

// RecurringKinds are the kinds that own a daily trigger in the registry.
var RecurringKinds = []Kind{KindWordOfTheDay}

// IsRecurring reports whether documents of this kind are scheduled daily.
func (k Kind) IsRecurring() bool {
	for _, rk := range RecurringKinds {
		if rk == k {
			return true
		}
	}
	return false
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindWordOfTheDay, KindWelcome, KindFarewell:
		return true
	}
	return false
}

// Config is the closed set of per-guild configuration documents.
type Config interface {
	Kind() Kind
	sealed()
}

// RecurringConfig drives a daily post (word of the day).
// Time is a 24h wall-clock "HH:MM" interpreted in Timezone (UTC when empty).
type RecurringConfig struct {
	JobKind   Kind   `json:"-" yaml:"-"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	ChannelID string `json:"channel_id,omitempty" yaml:"channel_id"`
	Time      string `json:"time,omitempty" yaml:"time"`
	Timezone  string `json:"timezone,omitempty" yaml:"timezone"`
	Language  string `json:"language,omitempty" yaml:"language"`
	Template  string `json:"template,omitempty" yaml:"template"`
}

func (c *RecurringConfig) Kind() Kind {
	if c.JobKind == "" {
		return KindWordOfTheDay
	}
	return c.JobKind
}

func (*RecurringConfig) sealed() {}

// Schedulable reports whether the config carries everything a trigger needs.
// A config that is not schedulable is treated as disabled.
func (c *RecurringConfig) Schedulable() bool {
	return c != nil && c.Enabled && c.ChannelID != "" && c.Time != ""
}

// Fingerprint identifies the scheduling-relevant content of the config.
func (c *RecurringConfig) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", c.ChannelID, c.Time, c.Timezone, c.Language, c.Template)
}

// WelcomeConfig configures the message posted when a member joins.
type WelcomeConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	ChannelID string `json:"channel_id,omitempty" yaml:"channel_id"`
	Message   string `json:"message,omitempty" yaml:"message"`
}

func (*WelcomeConfig) Kind() Kind { return KindWelcome }
func (*WelcomeConfig) sealed()    {}

// FarewellConfig configures the message posted when a member leaves.
type FarewellConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	ChannelID string `json:"channel_id,omitempty" yaml:"channel_id"`
	Message   string `json:"message,omitempty" yaml:"message"`
}

func (*FarewellConfig) Kind() Kind { return KindFarewell }
func (*FarewellConfig) sealed()    {}

// Document is one stored configuration row.
type Document struct {
	GuildID string
	Config  Config
}

// Change is delivered by the repository change feed.
// Config is nil when the document was deleted. Resync is set when the feed lost
// events (for example after a reconnect) and subscribers should re-enumerate.
type Change struct {
	GuildID string
	Kind    Kind
	Config  Config
	Resync  bool
}

// Decode builds the typed variant for kind from its JSON payload.
func Decode(kind Kind, payload []byte) (Config, error) {
	var cfg Config
	switch kind {
	case KindWordOfTheDay:
		cfg = &RecurringConfig{JobKind: kind}
	case KindWelcome:
		cfg = &WelcomeConfig{}
	case KindFarewell:
		cfg = &FarewellConfig{}
	default:
		return nil, fmt.Errorf("unknown config kind %q", kind)
	}
	if len(payload) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(payload, cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	return cfg, nil
}

// Encode serializes a config variant for storage.
func Encode(cfg Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return json.Marshal(cfg)
}

// MergePayload overlays the top-level keys of patch onto current.
// Fields omitted from patch keep their stored value.
func MergePayload(current, patch []byte) ([]byte, error) {
	base := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &base); err != nil {
			return nil, err
		}
	}
	overlay := map[string]json.RawMessage{}
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, err
	}
	for k, v := range overlay {
		base[k] = v
	}
	return json.Marshal(base)
}

// Merge returns the document a merge-write of patch onto current would store.
// current may be nil.
func Merge(current, patch Config) (Config, error) {
	patchPayload, err := Encode(patch)
	if err != nil {
		return nil, err
	}
	var currentPayload []byte
	if current != nil {
		if current.Kind() != patch.Kind() {
			return nil, fmt.Errorf("cannot merge %s into %s", patch.Kind(), current.Kind())
		}
		if currentPayload, err = Encode(current); err != nil {
			return nil, err
		}
	}
	merged, err := MergePayload(currentPayload, patchPayload)
	if err != nil {
		return nil, err
	}
	return Decode(patch.Kind(), merged)
}
