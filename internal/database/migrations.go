package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations are applied in slice order; versions must be strictly increasing.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "devices",
		SQL: `
			CREATE TABLE IF NOT EXISTS devices (
				id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				device_id    TEXT NOT NULL UNIQUE,
				type         TEXT NOT NULL CHECK (type IN ('vr', 'chair')),
				display_name TEXT,
				metadata     JSONB,
				last_seen_at TIMESTAMPTZ,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_devices_last_seen_at ON devices (last_seen_at);
		`,
	},
	{
		Version:     2,
		Description: "device pairs",
		SQL: `
			CREATE TABLE IF NOT EXISTS device_pairs (
				id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				pair_name       TEXT NOT NULL,
				vr_device_id    TEXT NOT NULL REFERENCES devices (device_id),
				chair_device_id TEXT NOT NULL REFERENCES devices (device_id),
				notes           TEXT,
				is_active       BOOLEAN NOT NULL DEFAULT TRUE,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_device_pairs_vr ON device_pairs (vr_device_id);
			CREATE INDEX IF NOT EXISTS idx_device_pairs_chair ON device_pairs (chair_device_id);
		`,
	},
	{
		Version:     3,
		Description: "sessions and participants",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				session_type     TEXT NOT NULL CHECK (session_type IN ('individual', 'group')),
				status           TEXT NOT NULL DEFAULT 'ready',
				overall_status   TEXT NOT NULL DEFAULT 'on_going',
				journey_ids      BIGINT[] NOT NULL DEFAULT '{}',
				group_id         TEXT,
				last_command     TEXT,
				last_position_ms BIGINT,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_overall_status ON sessions (overall_status, updated_at);

			CREATE TABLE IF NOT EXISTS session_participants (
				id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				session_id         UUID NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
				pair_id            UUID NOT NULL,
				vr_device_id       TEXT NOT NULL,
				chair_device_id    TEXT NOT NULL,
				language           TEXT,
				current_journey_id BIGINT,
				joined_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (session_id, pair_id)
			);
		`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range Pending(Migrations, current) {
		err := WithTx(ctx, db, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO schema_migrations (version, description) VALUES ($1, $2)
			`, m.Version, m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("migration applied")
	}

	return nil
}

// Pending returns the migrations with a version above current, in order.
func Pending(migrations []Migration, current int) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending
}
