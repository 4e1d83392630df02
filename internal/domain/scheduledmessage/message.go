// internal/domain/scheduledmessage/message.go
package scheduledmessage

import "time"

// DateLayout and TimeLayout are the stored formats of Message.Date and Message.Time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Message is a one-off announcement due at Date/Time in the reference zone.
// Corresponds to the 'scheduled_messages' table.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	Template  string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Status    Status
	CreatedAt time.Time
	SentAt    *time.Time
}
