package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/content"
	"guild_scheduler_bot/internal/domain/discord"
	"guild_scheduler_bot/internal/domain/guildconfig"
	"guild_scheduler_bot/internal/domain/scheduledmessage"
)

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type sentMessage struct {
	ChannelID string
	Msg       discord.OutgoingMessage
}

type fakeClient struct {
	mu         sync.Mutex
	guild      *discord.Guild
	members    []discord.Member
	denied     map[string]bool
	guildErr   error
	membersErr error
	sendErr    error
	sent       []sentMessage
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		guild: &discord.Guild{
			ID:   "g1",
			Name: "Polyglots",
			Channels: []discord.Channel{
				{ID: "c1", GuildID: "g1", Name: "general"},
				{ID: "c2", GuildID: "g1", Name: "announcements"},
			},
			Roles: []discord.Role{{ID: "r1", Name: "Moderators"}},
		},
		members: []discord.Member{
			{ID: "u1", Username: "alice", Discriminator: "0"},
			{ID: "u2", Username: "bob", Discriminator: "1234", DisplayName: "Bobby"},
		},
		denied: map[string]bool{},
	}
}

func (c *fakeClient) GetGuild(ctx context.Context, guildID string) (*discord.Guild, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guildErr != nil {
		return nil, c.guildErr
	}
	if c.guild == nil || c.guild.ID != guildID {
		return nil, fmt.Errorf("%w: guild %s", apperrors.ErrLookup, guildID)
	}
	return c.guild, nil
}

func (c *fakeClient) GetOrFetchChannel(ctx context.Context, guildID, channelID string) (*discord.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guild != nil && c.guild.ID == guildID {
		for _, ch := range c.guild.Channels {
			if ch.ID == channelID {
				return &ch, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: channel %s", apperrors.ErrLookup, channelID)
}

func (c *fakeClient) FetchAllMembers(ctx context.Context, guildID string) ([]discord.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.membersErr != nil {
		return nil, c.membersErr
	}
	return append([]discord.Member(nil), c.members...), nil
}

func (c *fakeClient) CanSend(ctx context.Context, channel *discord.Channel) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.denied[channel.ID], nil
}

func (c *fakeClient) SendMessage(ctx context.Context, channelID string, msg discord.OutgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentMessage{ChannelID: channelID, Msg: msg})
	return nil
}

func (c *fakeClient) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

type fakeMessageRepo struct {
	mu      sync.Mutex
	msgs    map[string]*scheduledmessage.Message
	listErr error
}

func newFakeMessageRepo(msgs ...*scheduledmessage.Message) *fakeMessageRepo {
	r := &fakeMessageRepo{msgs: map[string]*scheduledmessage.Message{}}
	for _, m := range msgs {
		if m.Status == "" {
			m.Status = scheduledmessage.StatusPending
		}
		r.msgs[m.ID] = m
	}
	return r
}

func (r *fakeMessageRepo) Enqueue(ctx context.Context, m *scheduledmessage.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.msgs[m.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (*scheduledmessage.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, scheduledmessage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) ListPending(ctx context.Context, date string) ([]*scheduledmessage.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*scheduledmessage.Message
	for _, m := range r.msgs {
		if m.Date == date && m.Status == scheduledmessage.StatusPending {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMessageRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok || m.Status != scheduledmessage.StatusPending {
		return false, nil
	}
	m.Status = scheduledmessage.StatusSent
	m.SentAt = &at
	return true, nil
}

type configKey struct {
	guildID string
	kind    guildconfig.Kind
}

type fakeConfigRepo struct {
	mu      sync.Mutex
	docs    map[configKey]guildconfig.Config
	changes []guildconfig.Change
	sets    int
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{docs: map[configKey]guildconfig.Config{}}
}

func (r *fakeConfigRepo) Get(ctx context.Context, guildID string, kind guildconfig.Kind) (guildconfig.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.docs[configKey{guildID, kind}]
	if !ok {
		return nil, guildconfig.ErrNotFound
	}
	return cfg, nil
}

func (r *fakeConfigRepo) Set(ctx context.Context, guildID string, cfg guildconfig.Config, merge bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets++
	key := configKey{guildID, cfg.Kind()}
	if merge {
		merged, err := guildconfig.Merge(r.docs[key], cfg)
		if err != nil {
			return err
		}
		cfg = merged
	}
	r.docs[key] = cfg
	return nil
}

func (r *fakeConfigRepo) Delete(ctx context.Context, guildID string, kind guildconfig.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := configKey{guildID, kind}
	if _, ok := r.docs[key]; !ok {
		return guildconfig.ErrNotFound
	}
	delete(r.docs, key)
	return nil
}

func (r *fakeConfigRepo) ListAll(ctx context.Context) ([]guildconfig.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make([]guildconfig.Document, 0, len(r.docs))
	for k, cfg := range r.docs {
		docs = append(docs, guildconfig.Document{GuildID: k.guildID, Config: cfg})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].GuildID < docs[j].GuildID })
	return docs, nil
}

// Subscribe opens with a resync like the real repositories, replays the queued changes
// and returns.
func (r *fakeConfigRepo) Subscribe(ctx context.Context, fn func(guildconfig.Change)) error {
	r.mu.Lock()
	changes := append([]guildconfig.Change{{Resync: true}}, r.changes...)
	r.mu.Unlock()
	for _, ch := range changes {
		fn(ch)
	}
	return nil
}

type fakeSource struct {
	entry *content.Entry
	err   error
	asked []string
}

func (s *fakeSource) RandomEntry(ctx context.Context, language string) (*content.Entry, error) {
	s.asked = append(s.asked, language)
	return s.entry, s.err
}

var errBoom = errors.New("boom")
