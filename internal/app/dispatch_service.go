// internal/app/dispatch_service.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/discord"
	"guild_scheduler_bot/internal/domain/guildconfig"
	"guild_scheduler_bot/internal/domain/message"
	"guild_scheduler_bot/internal/domain/scheduledmessage"
)

const guildNameMaxLen = 100

// operatorMentions is used for content written by guild operators: their templates
// may ping whatever they name. Interpolated data is sanitized before it gets here.
var operatorMentions = discord.AllowedMentions{Everyone: true, Roles: true, Users: true}

// DispatchService delivers one-off scheduled messages.
type DispatchService interface {
	// RunPollCycle sends every pending message whose date and minute equal now in the
	// reference zone. Per-message failures are logged and leave the message pending.
	RunPollCycle(ctx context.Context, now time.Time) error
}

type DispatchServiceImpl struct {
	repo        scheduledmessage.Repository
	client      discord.Client
	refZone     *time.Location
	concurrency int
	timeout     time.Duration
	logger      *logrus.Entry

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewDispatchServiceImpl(
	repo scheduledmessage.Repository,
	client discord.Client,
	refZone *time.Location,
	concurrency int,
	timeout time.Duration,
	logger *logrus.Entry,
) *DispatchServiceImpl {
	if refZone == nil {
		refZone = time.UTC
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &DispatchServiceImpl{
		repo:        repo,
		client:      client,
		refZone:     refZone,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger.WithField("component", "dispatch"),
		inFlight:    make(map[string]struct{}),
	}
}

func (s *DispatchServiceImpl) RunPollCycle(ctx context.Context, now time.Time) error {
	local := now.In(s.refZone)
	date := local.Format(scheduledmessage.DateLayout)

	pending, err := s.repo.ListPending(ctx, date)
	if err != nil {
		s.logger.WithError(err).WithField("date", date).Error("Failed to list pending scheduled messages")
		return fmt.Errorf("%w: list pending messages: %v", apperrors.ErrTransient, err)
	}

	due := make([]*scheduledmessage.Message, 0, len(pending))
	for _, m := range pending {
		clock, err := guildconfig.ParseClock(m.Time)
		if err != nil {
			s.logger.WithError(err).WithField("message_id", m.ID).Warn("Skipping scheduled message with malformed time")
			continue
		}
		// Exact minute only: a message whose minute was missed is not caught up.
		if clock.Hour == local.Hour() && clock.Minute == local.Minute() {
			due = append(due, m)
		}
	}
	if len(due) == 0 {
		s.logger.WithFields(logrus.Fields{"date": date, "pending": len(pending)}).Debug("No scheduled messages due this minute")
		return nil
	}
	s.logger.WithFields(logrus.Fields{"date": date, "time": local.Format(scheduledmessage.TimeLayout), "due": len(due)}).Info("Dispatching scheduled messages")

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, m := range due {
		g.Go(func() error {
			if !s.claim(m.ID) {
				return nil
			}
			defer s.release(m.ID)

			logCtx := s.logger.WithFields(logrus.Fields{"message_id": m.ID, "guild_id": m.GuildID, "channel_id": m.ChannelID})
			if err := s.dispatch(ctx, m, now, logCtx); err != nil {
				logFailure(logCtx, err, "Scheduled message not sent; left pending")
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *DispatchServiceImpl) dispatch(ctx context.Context, m *scheduledmessage.Message, now time.Time, logCtx *logrus.Entry) error {
	sendCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	guild, err := s.client.GetGuild(sendCtx, m.GuildID)
	if err != nil {
		return fmt.Errorf("get guild: %w", err)
	}
	channel, err := s.client.GetOrFetchChannel(sendCtx, m.GuildID, m.ChannelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	canSend, err := s.client.CanSend(sendCtx, channel)
	if err != nil {
		return fmt.Errorf("check permissions: %w", err)
	}
	if !canSend {
		return fmt.Errorf("%w: cannot send in channel %s", apperrors.ErrPermissionDenied, channel.ID)
	}
	members, err := s.client.FetchAllMembers(sendCtx, m.GuildID)
	if err != nil {
		return fmt.Errorf("fetch members: %w", err)
	}

	res := message.Resolve(m.Template, message.Context{
		GuildName: message.Sanitize(guild.Name, guildNameMaxLen),
		Guild:     guild,
		Members:   members,
	})
	if len(res.Unresolved) > 0 {
		logCtx.WithField("tokens", res.Unresolved).Warn("Scheduled message has unresolved placeholders")
	}
	out := res.Message(operatorMentions)
	if out.Empty() {
		return fmt.Errorf("%w: template resolved to an empty message", apperrors.ErrConfiguration)
	}
	if err := s.client.SendMessage(sendCtx, channel.ID, out); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// The send succeeded; recording it must not be cut short by the send timeout.
	markCtx, markCancel := s.withTimeout(context.WithoutCancel(ctx))
	defer markCancel()
	marked, err := s.repo.MarkSent(markCtx, m.ID, now)
	if err != nil {
		logCtx.WithError(err).Error("Scheduled message sent but could not be marked as sent")
		return nil
	}
	if !marked {
		logCtx.Warn("Scheduled message was already marked sent by another worker")
		return nil
	}
	logCtx.Info("Scheduled message sent")
	return nil
}

func (s *DispatchServiceImpl) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// claim guards against a slow send overlapping the next poll for the same message.
func (s *DispatchServiceImpl) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *DispatchServiceImpl) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// logFailure logs transient failures as warnings and setup problems as errors.
func logFailure(entry *logrus.Entry, err error, msg string) {
	entry = entry.WithError(err)
	if apperrors.IsTransient(err) {
		entry.Warn(msg)
		return
	}
	entry.Error(msg)
}
