package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guild_scheduler_bot/internal/domain/scheduledmessage"
)

type ScheduledMessageRepository struct {
	db *DB
}

func NewScheduledMessageRepository(db *DB) *ScheduledMessageRepository {
	return &ScheduledMessageRepository{db: db}
}

const scheduledMessageColumns = `id, guild_id, channel_id, template, send_date, send_time, status, created_at, sent_at`

func (r *ScheduledMessageRepository) Enqueue(ctx context.Context, m *scheduledmessage.Message) error {
	if m.Status == "" {
		m.Status = scheduledmessage.StatusPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	query := r.db.rebind(`INSERT INTO scheduled_messages (` + scheduledMessageColumns + `)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.GuildID, m.ChannelID, m.Template, m.Date, m.Time,
		string(m.Status), m.CreatedAt.UnixMilli(), toNullMillis(m.SentAt),
	)
	if err != nil {
		return fmt.Errorf("error enqueueing scheduled message: %w", err)
	}
	return nil
}

func (r *ScheduledMessageRepository) GetByID(ctx context.Context, id string) (*scheduledmessage.Message, error) {
	query := r.db.rebind(`SELECT ` + scheduledMessageColumns + ` FROM scheduled_messages WHERE id = ?`)
	m, err := scanScheduledMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, scheduledmessage.ErrNotFound
		}
		return nil, fmt.Errorf("error getting scheduled message by ID: %w", err)
	}
	return m, nil
}

func (r *ScheduledMessageRepository) ListPending(ctx context.Context, date string) ([]*scheduledmessage.Message, error) {
	query := r.db.rebind(`SELECT ` + scheduledMessageColumns + `
               FROM scheduled_messages
               WHERE status = ? AND send_date = ?
               ORDER BY send_time, created_at`)
	rows, err := r.db.QueryContext(ctx, query, string(scheduledmessage.StatusPending), date)
	if err != nil {
		return nil, fmt.Errorf("error listing pending scheduled messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*scheduledmessage.Message, 0)
	for rows.Next() {
		m, err := scanScheduledMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning scheduled message: %w", err)
		}
		messages = append(messages, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled messages: %w", err)
	}
	return messages, nil
}

// MarkSent only touches rows that are still pending, so concurrent pollers and
// re-entrant ticks agree on a single pending -> sent transition.
func (r *ScheduledMessageRepository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	query := r.db.rebind(`UPDATE scheduled_messages
               SET status = ?, sent_at = ?
               WHERE id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, query,
		string(scheduledmessage.StatusSent), at.UnixMilli(), id, string(scheduledmessage.StatusPending))
	if err != nil {
		return false, fmt.Errorf("error marking scheduled message %s as sent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledMessage(row rowScanner) (*scheduledmessage.Message, error) {
	var (
		m         scheduledmessage.Message
		status    string
		createdAt int64
		sentAt    sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.GuildID, &m.ChannelID, &m.Template, &m.Date, &m.Time,
		&status, &createdAt, &sentAt); err != nil {
		return nil, err
	}
	m.Status = scheduledmessage.Status(status)
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.SentAt = fromNullMillis(sentAt)
	return &m, nil
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}
