package guildconfig

import (
	"strings"

	"guild_scheduler_bot/internal/domain/apperrors"
)

// Validate checks a complete document before it is stored.
// Enabled documents need a channel; any time or timezone given must parse.
func Validate(cfg Config) error {
	switch c := cfg.(type) {
	case *RecurringConfig:
		if c.Time != "" {
			if _, err := ParseClock(c.Time); err != nil {
				return err
			}
		}
		if _, err := LoadTimezone(c.Timezone); err != nil {
			return err
		}
		if c.Enabled {
			if strings.TrimSpace(c.ChannelID) == "" {
				return apperrors.NewConfigurationError("channel_id", "", "required when enabled")
			}
			if c.Time == "" {
				return apperrors.NewConfigurationError("time", "", "required when enabled")
			}
		}
	case *WelcomeConfig:
		if c.Enabled && strings.TrimSpace(c.ChannelID) == "" {
			return apperrors.NewConfigurationError("channel_id", "", "required when enabled")
		}
	case *FarewellConfig:
		if c.Enabled && strings.TrimSpace(c.ChannelID) == "" {
			return apperrors.NewConfigurationError("channel_id", "", "required when enabled")
		}
	case nil:
		return apperrors.NewConfigurationError("config", "", "missing")
	}
	return nil
}
