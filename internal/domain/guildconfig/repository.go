// internal/domain/guildconfig/repository.go
package guildconfig

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("guild config not found")

// Repository is the document store holding guild configuration.
type Repository interface {
	// Get returns ErrNotFound when the guild has no document of this kind.
	Get(ctx context.Context, guildID string, kind Kind) (Config, error)
	// Set writes cfg. With merge, keys absent from cfg keep their stored values.
	Set(ctx context.Context, guildID string, cfg Config, merge bool) error
	Delete(ctx context.Context, guildID string, kind Kind) error
	ListAll(ctx context.Context) ([]Document, error)
	// Subscribe delivers changes to fn until ctx is done.
	Subscribe(ctx context.Context, fn func(Change)) error
}
