package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/guildconfig"
)

const configChangeChannel = "guild_config_changed"

// GuildConfigRepository stores guild configuration documents as JSON payloads keyed by
// (guild_id, kind). Writes are announced on a change feed: pg_notify for postgres, an
// in-process broker for sqlite.
type GuildConfigRepository struct {
	db     *DB
	broker *localBroker
	logger *logrus.Entry
}

func NewGuildConfigRepository(db *DB, logger *logrus.Entry) *GuildConfigRepository {
	return &GuildConfigRepository{
		db:     db,
		broker: newLocalBroker(),
		logger: logger.WithField("component", "guild_config_repository"),
	}
}

type configRef struct {
	GuildID string           `json:"guild_id"`
	Kind    guildconfig.Kind `json:"kind"`
}

func (r *GuildConfigRepository) Get(ctx context.Context, guildID string, kind guildconfig.Kind) (guildconfig.Config, error) {
	query := r.db.rebind(`SELECT payload FROM guild_configs WHERE guild_id = ? AND kind = ?`)
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, guildID, string(kind)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, guildconfig.ErrNotFound
		}
		return nil, fmt.Errorf("error getting guild config %s/%s: %w", guildID, kind, err)
	}
	return guildconfig.Decode(kind, payload)
}

func (r *GuildConfigRepository) Set(ctx context.Context, guildID string, cfg guildconfig.Config, merge bool) error {
	if guildID == "" {
		return fmt.Errorf("guild id is required")
	}
	patch, err := guildconfig.Encode(cfg)
	if err != nil {
		return err
	}
	kind := cfg.Kind()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for config write: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	payload := patch
	if merge {
		selectQuery := `SELECT payload FROM guild_configs WHERE guild_id = ? AND kind = ?`
		if r.db.driver == DriverPostgres {
			selectQuery += ` FOR UPDATE`
		}
		var current []byte
		err := tx.QueryRowContext(ctx, r.db.rebind(selectQuery), guildID, string(kind)).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("error reading guild config for merge: %w", err)
		default:
			if payload, err = guildconfig.MergePayload(current, patch); err != nil {
				return fmt.Errorf("error merging guild config %s/%s: %w", guildID, kind, err)
			}
		}
	}

	upsert := r.db.rebind(`INSERT INTO guild_configs (guild_id, kind, payload, updated_at)
               VALUES (?, ?, ?, ?)
               ON CONFLICT (guild_id, kind) DO UPDATE SET
                   payload    = excluded.payload,
                   updated_at = excluded.updated_at`)
	if _, err := tx.ExecContext(ctx, upsert, guildID, string(kind), string(payload), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("error writing guild config %s/%s: %w", guildID, kind, err)
	}
	if err := r.notifyTx(ctx, tx, configRef{GuildID: guildID, Kind: kind}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing guild config %s/%s: %w", guildID, kind, err)
	}
	r.broker.publish(configRef{GuildID: guildID, Kind: kind})
	return nil
}

func (r *GuildConfigRepository) Delete(ctx context.Context, guildID string, kind guildconfig.Kind) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for config delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM guild_configs WHERE guild_id = ? AND kind = ?`), guildID, string(kind))
	if err != nil {
		return fmt.Errorf("error deleting guild config %s/%s: %w", guildID, kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return guildconfig.ErrNotFound
	}
	if err := r.notifyTx(ctx, tx, configRef{GuildID: guildID, Kind: kind}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing guild config delete: %w", err)
	}
	r.broker.publish(configRef{GuildID: guildID, Kind: kind})
	return nil
}

func (r *GuildConfigRepository) ListAll(ctx context.Context) ([]guildconfig.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT guild_id, kind, payload FROM guild_configs ORDER BY guild_id, kind`)
	if err != nil {
		return nil, fmt.Errorf("error listing guild configs: %w", err)
	}
	defer rows.Close()

	docs := make([]guildconfig.Document, 0)
	for rows.Next() {
		var (
			guildID string
			kind    string
			payload []byte
		)
		if err := rows.Scan(&guildID, &kind, &payload); err != nil {
			return nil, fmt.Errorf("error scanning guild config: %w", err)
		}
		cfg, err := guildconfig.Decode(guildconfig.Kind(kind), payload)
		if err != nil {
			// One bad document must not hide the others.
			r.logger.WithError(err).WithFields(logrus.Fields{"guild_id": guildID, "kind": kind}).Warn("Skipping undecodable guild config")
			continue
		}
		docs = append(docs, guildconfig.Document{GuildID: guildID, Config: cfg})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guild configs: %w", err)
	}
	return docs, nil
}

// Subscribe delivers every committed write as a Change carrying the current document.
// The first Change is a Resync sent once the subscription is live. It blocks until ctx
// is done.
func (r *GuildConfigRepository) Subscribe(ctx context.Context, fn func(guildconfig.Change)) error {
	deliver := func(ref configRef, resync bool) {
		if resync {
			fn(guildconfig.Change{Resync: true})
			return
		}
		cfg, err := r.Get(ctx, ref.GuildID, ref.Kind)
		if err != nil && !errors.Is(err, guildconfig.ErrNotFound) {
			r.logger.WithError(err).WithFields(logrus.Fields{"guild_id": ref.GuildID, "kind": ref.Kind}).Error("Failed to load changed guild config")
			return
		}
		fn(guildconfig.Change{GuildID: ref.GuildID, Kind: ref.Kind, Config: cfg})
	}

	if r.db.driver == DriverPostgres {
		return listenPostgres(ctx, r.db.dsn, configChangeChannel, r.logger, deliver)
	}
	return r.broker.listen(ctx, deliver)
}

func (r *GuildConfigRepository) notifyTx(ctx context.Context, tx *sql.Tx, ref configRef) error {
	if r.db.driver != DriverPostgres {
		return nil
	}
	payload, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	// Delivered to listeners only when the transaction commits.
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, configChangeChannel, string(payload)); err != nil {
		return fmt.Errorf("error publishing config change: %w", err)
	}
	return nil
}
