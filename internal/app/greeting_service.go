// internal/app/greeting_service.go
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/discord"
	"guild_scheduler_bot/internal/domain/guildconfig"
	"guild_scheduler_bot/internal/domain/message"
)

const (
	usernameMaxLen = 64

	DefaultWelcomeMessage  = "Welcome to {server}, {usermention}!"
	DefaultFarewellMessage = "{username} has left {server}."
)

// GreetingService posts the welcome and farewell messages of a guild.
type GreetingService interface {
	MemberJoined(ctx context.Context, guildID string, member discord.Member) error
	MemberLeft(ctx context.Context, guildID string, member discord.Member) error
}

type GreetingServiceImpl struct {
	configs guildconfig.Repository
	client  discord.Client
	logger  *logrus.Entry
}

func NewGreetingServiceImpl(configs guildconfig.Repository, client discord.Client, logger *logrus.Entry) *GreetingServiceImpl {
	return &GreetingServiceImpl{
		configs: configs,
		client:  client,
		logger:  logger.WithField("component", "greeting"),
	}
}

func (s *GreetingServiceImpl) MemberJoined(ctx context.Context, guildID string, member discord.Member) error {
	cfg, err := s.configs.Get(ctx, guildID, guildconfig.KindWelcome)
	if err != nil {
		return s.ignoreMissing(err, guildID, guildconfig.KindWelcome)
	}
	wc, ok := cfg.(*guildconfig.WelcomeConfig)
	if !ok || !wc.Enabled || wc.ChannelID == "" {
		return nil
	}
	tmpl := wc.Message
	if tmpl == "" {
		tmpl = DefaultWelcomeMessage
	}
	return s.post(ctx, guildID, wc.ChannelID, tmpl, member, guildconfig.KindWelcome)
}

func (s *GreetingServiceImpl) MemberLeft(ctx context.Context, guildID string, member discord.Member) error {
	cfg, err := s.configs.Get(ctx, guildID, guildconfig.KindFarewell)
	if err != nil {
		return s.ignoreMissing(err, guildID, guildconfig.KindFarewell)
	}
	fc, ok := cfg.(*guildconfig.FarewellConfig)
	if !ok || !fc.Enabled || fc.ChannelID == "" {
		return nil
	}
	tmpl := fc.Message
	if tmpl == "" {
		tmpl = DefaultFarewellMessage
	}
	return s.post(ctx, guildID, fc.ChannelID, tmpl, member, guildconfig.KindFarewell)
}

func (s *GreetingServiceImpl) ignoreMissing(err error, guildID string, kind guildconfig.Kind) error {
	if errors.Is(err, guildconfig.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("%w: load %s config for guild %s: %v", apperrors.ErrTransient, kind, guildID, err)
}

func (s *GreetingServiceImpl) post(ctx context.Context, guildID, channelID, tmpl string, member discord.Member, kind guildconfig.Kind) error {
	channel, err := s.client.GetOrFetchChannel(ctx, guildID, channelID)
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

	// Names are chosen by the member, so they are data. The mention is built from the ID.
	subject := discord.Member{
		ID:            member.ID,
		Username:      message.Sanitize(member.Username, usernameMaxLen),
		Discriminator: member.Discriminator,
		DisplayName:   message.Sanitize(member.DisplayName, usernameMaxLen),
	}
	res := message.Resolve(tmpl, message.Context{
		GuildName: message.Sanitize(guild.Name, guildNameMaxLen),
		Guild:     guild,
		Member:    &subject,
	})
	if len(res.Unresolved) > 0 {
		s.logger.WithFields(logrus.Fields{"guild_id": guildID, "kind": kind, "tokens": res.Unresolved}).Warn("Greeting template has unresolved placeholders")
	}
	out := res.Message(operatorMentions)
	if out.Empty() {
		return fmt.Errorf("%w: %s template resolved to an empty message", apperrors.ErrConfiguration, kind)
	}
	if err := s.client.SendMessage(ctx, channel.ID, out); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"guild_id": guildID, "kind": kind, "member_id": member.ID}).Info("Greeting posted")
	return nil
}
