// internal/domain/scheduledmessage/status.go
package scheduledmessage

// Status is the delivery state of a scheduled message. It only moves pending -> sent.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)
