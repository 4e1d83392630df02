// internal/app/word_service.go
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/content"
	"guild_scheduler_bot/internal/domain/discord"
	"guild_scheduler_bot/internal/domain/guildconfig"
	"guild_scheduler_bot/internal/domain/message"
)

const (
	wordMaxLen     = 200
	meaningMaxLen  = 1000
	exampleMaxLen  = 1000
	languageMaxLen = 32

	DefaultWordTemplate        = "📚 **Word of the day** ({language})\n**{word}**: {meaning}\n_{example}_"
	defaultWordTemplateNoUsage = "📚 **Word of the day** ({language})\n**{word}**: {meaning}"
)

// WordOfTheDayService posts the daily word of a guild.
type WordOfTheDayService interface {
	Post(ctx context.Context, guildID string, cfg guildconfig.RecurringConfig) error
	// Run is the recurring job runner: it posts and logs, never returning an error.
	Run(ctx context.Context, guildID string, cfg guildconfig.RecurringConfig)
}

type WordOfTheDayServiceImpl struct {
	client discord.Client
	source content.Source
	logger *logrus.Entry
}

func NewWordOfTheDayServiceImpl(client discord.Client, source content.Source, logger *logrus.Entry) *WordOfTheDayServiceImpl {
	return &WordOfTheDayServiceImpl{
		client: client,
		source: source,
		logger: logger.WithField("component", "word_of_the_day"),
	}
}

func (s *WordOfTheDayServiceImpl) Run(ctx context.Context, guildID string, cfg guildconfig.RecurringConfig) {
	logCtx := s.logger.WithFields(logrus.Fields{"guild_id": guildID, "channel_id": cfg.ChannelID, "language": cfg.Language})
	if err := s.Post(ctx, guildID, cfg); err != nil {
		logFailure(logCtx, err, "Word of the day not posted")
		return
	}
	logCtx.Info("Word of the day posted")
}

func (s *WordOfTheDayServiceImpl) Post(ctx context.Context, guildID string, cfg guildconfig.RecurringConfig) error {
	channel, err := s.client.GetOrFetchChannel(ctx, guildID, cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	canSend, err := s.client.CanSend(ctx, channel)
	if err != nil {
		return fmt.Errorf("check permissions: %w", err)
	}
	if !canSend {
		return fmt.Errorf("%w: cannot send in channel %s", apperrors.ErrPermissionDenied, channel.ID)
	}
	guild, err := s.client.GetGuild(ctx, guildID)
	if err != nil {
		return fmt.Errorf("get guild: %w", err)
	}

	entry, err := s.source.RandomEntry(ctx, cfg.Language)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("%w: no content for language %q", apperrors.ErrLookup, cfg.Language)
	}

	tmpl := cfg.Template
	if tmpl == "" {
		tmpl = DefaultWordTemplate
		if strings.TrimSpace(entry.Example) == "" {
			tmpl = defaultWordTemplateNoUsage
		}
	}

	rctx := message.Context{
		GuildName: message.Sanitize(guild.Name, guildNameMaxLen),
		Guild:     guild,
		Vars: map[string]string{
			"word":     message.Sanitize(entry.Word, wordMaxLen),
			"meaning":  message.Sanitize(entry.Meaning, meaningMaxLen),
			"example":  message.Sanitize(entry.Example, exampleMaxLen),
			"language": message.Sanitize(cfg.Language, languageMaxLen),
		},
	}
	if strings.Contains(tmpl, "{user") {
		members, err := s.client.FetchAllMembers(ctx, guildID)
		if err != nil {
			// Member tokens then stay verbatim; the word itself still goes out.
			s.logger.WithError(err).WithField("guild_id", guildID).Warn("Could not fetch members for word of the day template")
		}
		rctx.Members = members
	}

	res := message.Resolve(tmpl, rctx)
	if len(res.Unresolved) > 0 {
		s.logger.WithFields(logrus.Fields{"guild_id": guildID, "tokens": res.Unresolved}).Warn("Word of the day template has unresolved placeholders")
	}
	out := res.Message(operatorMentions)
	if out.Empty() {
		return fmt.Errorf("%w: template resolved to an empty message", apperrors.ErrConfiguration)
	}
	if err := s.client.SendMessage(ctx, channel.ID, out); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
