package discord

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/app"
	domain "guild_scheduler_bot/internal/domain/discord"
)

// Intents needed for guild state, member join/leave events and member listing.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

// NewSession creates a bot session. The gateway is not opened.
func NewSession(token string, timeout time.Duration) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = Intents
	s.Client = &http.Client{Timeout: timeout}
	s.StateEnabled = true
	return s, nil
}

type memberCache interface {
	Forget(guildID string)
}

// Handlers routes gateway events to the application services.
type Handlers struct {
	greetings app.GreetingService
	cache     memberCache
	timeout   time.Duration
	logger    *logrus.Entry
}

func NewHandlers(greetings app.GreetingService, cache memberCache, timeout time.Duration, logger *logrus.Entry) *Handlers {
	return &Handlers{
		greetings: greetings,
		cache:     cache,
		timeout:   timeout,
		logger:    logger.WithField("component", "discord_events"),
	}
}

// Register attaches the handlers to the session. discordgo runs each in its own goroutine.
func (h *Handlers) Register(s *discordgo.Session) {
	s.AddHandler(h.onReady)
	s.AddHandler(h.onMemberAdd)
	s.AddHandler(h.onMemberRemove)
}

func (h *Handlers) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	h.logger.WithFields(logrus.Fields{"user": r.User.Username, "guilds": len(r.Guilds)}).Info("Discord session ready")
}

func (h *Handlers) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.User == nil || e.User.Bot {
		return
	}
	h.cache.Forget(e.GuildID)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.greetings.MemberJoined(ctx, e.GuildID, toMember(e.Member)); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"guild_id": e.GuildID, "member_id": e.User.ID}).Warn("Welcome message not posted")
	}
}

func (h *Handlers) onMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.Member == nil || e.User == nil || e.User.Bot {
		return
	}
	h.cache.Forget(e.GuildID)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.greetings.MemberLeft(ctx, e.GuildID, toMember(e.Member)); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"guild_id": e.GuildID, "member_id": e.User.ID}).Warn("Farewell message not posted")
	}
}

var _ domain.Client = (*DiscordgoAdapter)(nil)
