package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/apperrors"
	domain "guild_scheduler_bot/internal/domain/discord"
)

type fakeSession struct {
	guild       *discordgo.Guild
	channels    []*discordgo.Channel
	roles       []*discordgo.Role
	members     []*discordgo.Member
	perms       int64
	err         error
	memberCalls int
	sent        []*discordgo.MessageSend
}

func (f *fakeSession) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.guild, nil
}

func (f *fakeSession) GuildChannels(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return f.channels, nil
}

func (f *fakeSession) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, ch := range f.channels {
		if ch.ID == channelID {
			return ch, nil
		}
	}
	return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel)
}

func (f *fakeSession) GuildMembers(guildID, after string, limit int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	f.memberCalls++
	start := 0
	if after != "" {
		for i, m := range f.members {
			if m.User.ID == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(f.members) {
		end = len(f.members)
	}
	return f.members[start:end], nil
}

func (f *fakeSession) UserChannelPermissions(userID, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	return f.perms, f.err
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "test"},
	}
}

func newTestAdapter(s *fakeSession) *DiscordgoAdapter {
	l := logrus.New()
	l.SetOutput(io.Discard)
	a := newAdapter(s, nil, 0, time.Second, logrus.NewEntry(l))
	a.botID = func() string { return "bot" }
	return a
}

func TestAdapter_GetGuildFromREST(t *testing.T) {
	s := &fakeSession{
		guild:    &discordgo.Guild{ID: "g1", Name: "Guild"},
		channels: []*discordgo.Channel{{ID: "c1", GuildID: "g1", Name: "general"}},
		roles:    []*discordgo.Role{{ID: "r1", Name: "Mods"}},
	}
	g, err := newTestAdapter(s).GetGuild(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get guild: %v", err)
	}
	if g.Name != "Guild" || len(g.Channels) != 1 || g.Channels[0].Name != "general" || len(g.Roles) != 1 {
		t.Fatalf("unexpected guild %+v", g)
	}
}

func TestAdapter_GetOrFetchChannel(t *testing.T) {
	s := &fakeSession{channels: []*discordgo.Channel{{ID: "c1", GuildID: "g1", Name: "general"}}}
	a := newTestAdapter(s)

	ch, err := a.GetOrFetchChannel(context.Background(), "g1", "c1")
	if err != nil || ch.Name != "general" {
		t.Fatalf("unexpected %+v, %v", ch, err)
	}
	if _, err := a.GetOrFetchChannel(context.Background(), "other", "c1"); !errors.Is(err, apperrors.ErrLookup) {
		t.Fatalf("channel of another guild: want ErrLookup, got %v", err)
	}
	if _, err := a.GetOrFetchChannel(context.Background(), "g1", "gone"); !errors.Is(err, apperrors.ErrLookup) {
		t.Fatalf("unknown channel: want ErrLookup, got %v", err)
	}
}

func TestAdapter_FetchAllMembersPagesAndCaches(t *testing.T) {
	s := &fakeSession{}
	for i := 0; i < membersPageSize+5; i++ {
		s.members = append(s.members, &discordgo.Member{User: &discordgo.User{ID: fmt.Sprintf("u%05d", i), Username: fmt.Sprintf("user%d", i)}})
	}
	s.members[0].Nick = "Nick"
	a := newTestAdapter(s)

	members, err := a.FetchAllMembers(context.Background(), "g1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(members) != membersPageSize+5 || s.memberCalls != 2 {
		t.Fatalf("want %d members in 2 pages, got %d in %d", membersPageSize+5, len(members), s.memberCalls)
	}
	if members[0].DisplayName != "Nick" {
		t.Fatalf("nickname not used as display name: %+v", members[0])
	}

	_, _ = a.FetchAllMembers(context.Background(), "g1")
	if s.memberCalls != 2 {
		t.Fatal("second fetch within TTL must come from cache")
	}
	a.Forget("g1")
	_, _ = a.FetchAllMembers(context.Background(), "g1")
	if s.memberCalls != 4 {
		t.Fatalf("forget must drop the cache, calls=%d", s.memberCalls)
	}
}

func TestAdapter_CanSend(t *testing.T) {
	tests := []struct {
		name  string
		perms int64
		want  bool
	}{
		{"view and send", int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages), true},
		{"view only", int64(discordgo.PermissionViewChannel), false},
		{"none", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(&fakeSession{perms: tt.perms})
			got, err := a.CanSend(context.Background(), &domain.Channel{ID: "c1"})
			if err != nil || got != tt.want {
				t.Fatalf("want %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestAdapter_SendMessage(t *testing.T) {
	s := &fakeSession{}
	a := newTestAdapter(s)

	err := a.SendMessage(context.Background(), "c1", domain.OutgoingMessage{
		Text:            "hello <@&r1>",
		Embeds:          []domain.Embed{{ImageURL: "https://media.example/a.gif"}},
		AllowedMentions: domain.AllowedMentions{Roles: true},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	got := s.sent[0]
	if got.Content != "hello <@&r1>" || len(got.Embeds) != 1 || got.Embeds[0].Image.URL != "https://media.example/a.gif" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if len(got.AllowedMentions.Parse) != 1 || got.AllowedMentions.Parse[0] != discordgo.AllowedMentionTypeRoles {
		t.Fatalf("unexpected allowed mentions %+v", got.AllowedMentions)
	}

	if err := a.SendMessage(context.Background(), "c1", domain.OutgoingMessage{}); !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("empty message: want ErrConfiguration, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing permissions", restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), apperrors.ErrPermissionDenied},
		{"forbidden without code", restError(http.StatusForbidden, 0), apperrors.ErrPermissionDenied},
		{"unknown guild", restError(http.StatusNotFound, discordgo.ErrCodeUnknownGuild), apperrors.ErrLookup},
		{"server error", restError(http.StatusBadGateway, 0), apperrors.ErrTransient},
		{"network", errors.New("connection reset"), apperrors.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err, "x"); !errors.Is(got, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
		})
	}
}
