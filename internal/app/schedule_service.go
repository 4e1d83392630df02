// internal/app/schedule_service.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/guildconfig"
	"guild_scheduler_bot/internal/domain/scheduledmessage"
)

const maxTemplateLen = 4000

// ScheduleRequest is the operator input for a one-off message.
type ScheduleRequest struct {
	GuildID   string
	ChannelID string
	Template  string
	Date      string // YYYY-MM-DD in the reference zone
	Time      string // HH:MM in the reference zone
}

// ScheduleService queues one-off messages for the dispatch poller.
type ScheduleService interface {
	Enqueue(ctx context.Context, req ScheduleRequest) (*scheduledmessage.Message, error)
}

type ScheduleServiceImpl struct {
	repo    scheduledmessage.Repository
	refZone *time.Location
	now     func() time.Time
	logger  *logrus.Entry
}

func NewScheduleServiceImpl(repo scheduledmessage.Repository, refZone *time.Location, logger *logrus.Entry) *ScheduleServiceImpl {
	if refZone == nil {
		refZone = time.UTC
	}
	return &ScheduleServiceImpl{
		repo:    repo,
		refZone: refZone,
		now:     time.Now,
		logger:  logger.WithField("component", "schedule"),
	}
}

// Enqueue validates req and stores it as a pending message. Times already in the past
// are rejected since the poller never catches up.
func (s *ScheduleServiceImpl) Enqueue(ctx context.Context, req ScheduleRequest) (*scheduledmessage.Message, error) {
	if strings.TrimSpace(req.GuildID) == "" {
		return nil, apperrors.NewConfigurationError("guild_id", "", "required")
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		return nil, apperrors.NewConfigurationError("channel_id", "", "required")
	}
	if strings.TrimSpace(req.Template) == "" {
		return nil, apperrors.NewConfigurationError("template", "", "required")
	}
	if len(req.Template) > maxTemplateLen {
		return nil, apperrors.NewConfigurationError("template", "", fmt.Sprintf("longer than %d bytes", maxTemplateLen))
	}
	day, err := time.ParseInLocation(scheduledmessage.DateLayout, strings.TrimSpace(req.Date), s.refZone)
	if err != nil {
		return nil, apperrors.NewConfigurationError("date", req.Date, "expected YYYY-MM-DD")
	}
	clock, err := guildconfig.ParseClock(req.Time)
	if err != nil {
		return nil, err
	}

	due := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour, clock.Minute, 0, 0, s.refZone)
	if due.Before(s.now().In(s.refZone).Truncate(time.Minute)) {
		return nil, apperrors.NewConfigurationError("date", req.Date+" "+clock.String(), "is in the past")
	}

	m := &scheduledmessage.Message{
		ID:        uuid.NewString(),
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Template:  req.Template,
		Date:      day.Format(scheduledmessage.DateLayout),
		Time:      clock.String(),
		Status:    scheduledmessage.StatusPending,
	}
	if err := s.repo.Enqueue(ctx, m); err != nil {
		return nil, fmt.Errorf("enqueue scheduled message: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"message_id": m.ID,
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"date":       m.Date,
		"time":       m.Time,
	}).Info("Scheduled message queued")
	return m, nil
}
