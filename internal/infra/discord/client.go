// internal/infra/discord/client.go
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"guild_scheduler_bot/internal/domain/apperrors"
	domain "guild_scheduler_bot/internal/domain/discord"
)

const (
	membersPageSize = 1000
	memberCacheTTL  = 5 * time.Minute
)

// Session is the part of *discordgo.Session the adapter calls.
type Session interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type cachedMembers struct {
	members []domain.Member
	fetched time.Time
}

// DiscordgoAdapter implements the domain Client on top of discordgo.
// Guild and channel lookups use the gateway state cache first and fall back to REST.
type DiscordgoAdapter struct {
	session Session
	state   *discordgo.State
	botID   func() string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *logrus.Entry
	now     func() time.Time

	mu      sync.Mutex
	members map[string]cachedMembers
}

func NewDiscordgoAdapter(s *discordgo.Session, sendsPerSecond float64, timeout time.Duration, logger *logrus.Entry) *DiscordgoAdapter {
	a := newAdapter(s, s.State, sendsPerSecond, timeout, logger)
	a.botID = func() string {
		if s.State != nil && s.State.User != nil {
			return s.State.User.ID
		}
		return ""
	}
	return a
}

func newAdapter(session Session, state *discordgo.State, sendsPerSecond float64, timeout time.Duration, logger *logrus.Entry) *DiscordgoAdapter {
	limit := rate.Inf
	burst := 1
	if sendsPerSecond > 0 {
		limit = rate.Limit(sendsPerSecond)
		burst = int(sendsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &DiscordgoAdapter{
		session: session,
		state:   state,
		botID:   func() string { return "" },
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		logger:  logger.WithField("component", "discord"),
		now:     time.Now,
		members: make(map[string]cachedMembers),
	}
}

func (a *DiscordgoAdapter) GetGuild(ctx context.Context, guildID string) (*domain.Guild, error) {
	if a.state != nil {
		if g, err := a.state.Guild(guildID); err == nil && len(g.Channels) > 0 {
			return toGuild(g, g.Channels, g.Roles), nil
		}
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	g, err := a.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, "guild "+guildID)
	}
	channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, "channels of guild "+guildID)
	}
	roles := g.Roles
	if len(roles) == 0 {
		if roles, err = a.session.GuildRoles(guildID, discordgo.WithContext(ctx)); err != nil {
			return nil, classify(err, "roles of guild "+guildID)
		}
	}
	return toGuild(g, channels, roles), nil
}

func (a *DiscordgoAdapter) GetOrFetchChannel(ctx context.Context, guildID, channelID string) (*domain.Channel, error) {
	if a.state != nil {
		if ch, err := a.state.Channel(channelID); err == nil {
			return channelInGuild(ch, guildID)
		}
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, "channel "+channelID)
	}
	return channelInGuild(ch, guildID)
}

// FetchAllMembers pages through the guild member list. Results are cached briefly so a
// poll cycle with several records for one guild fetches once.
func (a *DiscordgoAdapter) FetchAllMembers(ctx context.Context, guildID string) ([]domain.Member, error) {
	a.mu.Lock()
	if c, ok := a.members[guildID]; ok && a.now().Sub(c.fetched) < memberCacheTTL {
		a.mu.Unlock()
		return c.members, nil
	}
	a.mu.Unlock()

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	var (
		out   []domain.Member
		after string
	)
	for {
		page, err := a.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify(err, "members of guild "+guildID)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			out = append(out, toMember(m))
		}
		if len(page) < membersPageSize || page[len(page)-1].User == nil {
			break
		}
		after = page[len(page)-1].User.ID
	}

	a.mu.Lock()
	a.members[guildID] = cachedMembers{members: out, fetched: a.now()}
	a.mu.Unlock()
	a.logger.WithFields(logrus.Fields{"guild_id": guildID, "members": len(out)}).Debug("Fetched guild members")
	return out, nil
}

// CanSend requires both view and send permissions for the bot user.
func (a *DiscordgoAdapter) CanSend(ctx context.Context, channel *domain.Channel) (bool, error) {
	botID := a.botID()
	if botID == "" {
		return false, fmt.Errorf("%w: session not ready", apperrors.ErrTransient)
	}

	var (
		perms int64
		err   error
	)
	if a.state != nil {
		perms, err = a.state.UserChannelPermissions(botID, channel.ID)
	}
	if a.state == nil || err != nil {
		ctx, cancel := a.withTimeout(ctx)
		defer cancel()
		perms, err = a.session.UserChannelPermissions(botID, channel.ID, discordgo.WithContext(ctx))
		if err != nil {
			return false, classify(err, "permissions in channel "+channel.ID)
		}
	}
	need := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages)
	return perms&need == need, nil
}

func (a *DiscordgoAdapter) SendMessage(ctx context.Context, channelID string, msg domain.OutgoingMessage) error {
	if msg.Empty() {
		return fmt.Errorf("%w: empty message", apperrors.ErrConfiguration)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: send throttled: %v", apperrors.ErrTransient, err)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	_, err := a.session.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return classify(err, "send to channel "+channelID)
	}
	return nil
}

// Forget drops cached members of a guild, e.g. after a join or leave.
func (a *DiscordgoAdapter) Forget(guildID string) {
	a.mu.Lock()
	delete(a.members, guildID)
	a.mu.Unlock()
}

func (a *DiscordgoAdapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func channelInGuild(ch *discordgo.Channel, guildID string) (*domain.Channel, error) {
	if ch.GuildID != guildID {
		return nil, fmt.Errorf("%w: channel %s is not in guild %s", apperrors.ErrLookup, ch.ID, guildID)
	}
	return &domain.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

func toGuild(g *discordgo.Guild, channels []*discordgo.Channel, roles []*discordgo.Role) *domain.Guild {
	out := &domain.Guild{ID: g.ID, Name: g.Name}
	for _, ch := range channels {
		out.Channels = append(out.Channels, domain.Channel{ID: ch.ID, GuildID: g.ID, Name: ch.Name})
	}
	for _, r := range roles {
		out.Roles = append(out.Roles, domain.Role{ID: r.ID, Name: r.Name})
	}
	return out
}

func toMember(m *discordgo.Member) domain.Member {
	display := m.Nick
	if display == "" {
		display = m.User.GlobalName
	}
	return domain.Member{
		ID:            m.User.ID,
		Username:      m.User.Username,
		Discriminator: m.User.Discriminator,
		DisplayName:   display,
	}
}

func toMessageSend(msg domain.OutgoingMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:         msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if msg.AllowedMentions.Everyone {
		send.AllowedMentions.Parse = append(send.AllowedMentions.Parse, discordgo.AllowedMentionTypeEveryone)
	}
	if msg.AllowedMentions.Roles {
		send.AllowedMentions.Parse = append(send.AllowedMentions.Parse, discordgo.AllowedMentionTypeRoles)
	}
	if msg.AllowedMentions.Users {
		send.AllowedMentions.Parse = append(send.AllowedMentions.Parse, discordgo.AllowedMentionTypeUsers)
	}
	for _, e := range msg.Embeds {
		send.Embeds = append(send.Embeds, &discordgo.MessageEmbed{Image: &discordgo.MessageEmbedImage{URL: e.ImageURL}})
	}
	return send
}

// classify maps discordgo failures onto the shared error kinds.
func classify(err error, what string) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return fmt.Errorf("%w: %s: %v", apperrors.ErrPermissionDenied, what, err)
			case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownGuild, discordgo.ErrCodeUnknownMember:
				return fmt.Errorf("%w: %s: %v", apperrors.ErrLookup, what, err)
			}
		}
		if rest.Response != nil {
			switch rest.Response.StatusCode {
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s: %v", apperrors.ErrPermissionDenied, what, err)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s: %v", apperrors.ErrLookup, what, err)
			}
		}
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrLookup, what, err)
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrTransient, what, err)
}
