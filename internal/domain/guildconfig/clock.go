// internal/domain/guildconfig/clock.go
package guildconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"guild_scheduler_bot/internal/domain/apperrors"
)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM" (24h). Single-digit hours are accepted.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, apperrors.NewConfigurationError("time", s, "expected HH:MM")
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return Clock{}, apperrors.NewConfigurationError("time", s, "hour is not a number")
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return Clock{}, apperrors.NewConfigurationError("time", s, "minute must be two digits")
	}
	if hour < 0 || hour >= 24 {
		return Clock{}, apperrors.NewConfigurationError("time", s, "hour out of range 0-23")
	}
	if minute < 0 || minute >= 60 {
		return Clock{}, apperrors.NewConfigurationError("time", s, "minute out of range 0-59")
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// LoadTimezone resolves an IANA zone name; empty means UTC.
func LoadTimezone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperrors.NewConfigurationError("timezone", name, "unknown IANA zone")
	}
	return loc, nil
}
