// internal/domain/discord/types.go
package discord

import "fmt"

type Guild struct {
	ID       string
	Name     string
	Channels []Channel
	Roles    []Role
}

type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Mention is the canonical channel mention token.
func (c Channel) Mention() string { return fmt.Sprintf("<#%s>", c.ID) }

type Role struct {
	ID   string
	Name string
}

func (r Role) Mention() string { return fmt.Sprintf("<@&%s>", r.ID) }

type Member struct {
	ID            string
	Username      string
	Discriminator string
	DisplayName   string
}

func (m Member) Mention() string { return fmt.Sprintf("<@%s>", m.ID) }

// Tag is the discriminator-qualified name, or the bare username for accounts
// migrated off discriminators ("0").
func (m Member) Tag() string {
	if m.Discriminator == "" || m.Discriminator == "0" {
		return m.Username
	}
	return m.Username + "#" + m.Discriminator
}

type Embed struct {
	ImageURL string
}

// AllowedMentions controls which mention kinds may notify recipients.
type AllowedMentions struct {
	Everyone bool
	Roles    bool
	Users    bool
}

type OutgoingMessage struct {
	Text            string
	Embeds          []Embed
	AllowedMentions AllowedMentions
}

// Empty reports whether the platform would reject the message for having no content.
func (m OutgoingMessage) Empty() bool {
	return m.Text == "" && len(m.Embeds) == 0
}
