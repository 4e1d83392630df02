// internal/domain/discord/client.go
package discord

import "context"

// Client is what the scheduling core needs from the chat platform.
// It keeps application logic independent of the concrete Discord library.
type Client interface {
	// GetGuild returns the guild with its channels and roles, from cache when possible.
	GetGuild(ctx context.Context, guildID string) (*Guild, error)
	GetOrFetchChannel(ctx context.Context, guildID, channelID string) (*Channel, error)
	FetchAllMembers(ctx context.Context, guildID string) ([]Member, error)
	// CanSend reports whether the bot may post in the channel.
	CanSend(ctx context.Context, channel *Channel) (bool, error)
	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) error
}
