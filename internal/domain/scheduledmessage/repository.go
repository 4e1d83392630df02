// internal/domain/scheduledmessage/repository.go
package scheduledmessage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("scheduled message not found")

// Repository is the persisted queue of one-off messages.
type Repository interface {
	Enqueue(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListPending returns pending messages whose Date equals date (YYYY-MM-DD).
	ListPending(ctx context.Context, date string) ([]*Message, error)
	// MarkSent moves a pending message to sent. It reports false when the message
	// was no longer pending, which callers treat as "someone else got there first".
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
}
