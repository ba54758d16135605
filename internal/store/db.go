package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and applies the schema.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return &DB{Client: db}, err
	}
	if err := migrate(db); err != nil {
		return &DB{Client: db}, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		doc_id             TEXT PRIMARY KEY,
		worker_id          TEXT UNIQUE NOT NULL,
		name               TEXT NOT NULL,
		post               TEXT NOT NULL DEFAULT '',
		face_image_url     TEXT NOT NULL DEFAULT '',
		qr_code_url        TEXT NOT NULL DEFAULT '',
		face_embedding     JSONB,
		attendance_status  TEXT NOT NULL DEFAULT 'absent',
		last_attendance_at TIMESTAMPTZ,
		last_ppe_status    TEXT NOT NULL DEFAULT 'unknown',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_events (
		id             TEXT PRIMARY KEY,
		worker_id      TEXT NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		post           TEXT NOT NULL DEFAULT '',
		occurred_at    TIMESTAMPTZ NOT NULL,
		ppe_compliant  BOOLEAN NOT NULL,
		ppe_violations JSONB NOT NULL DEFAULT '[]',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS devices (
		device_id  TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_events_worker ON attendance_events(worker_id);
	CREATE INDEX IF NOT EXISTS idx_events_time   ON attendance_events(occurred_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
