package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, log *zap.SugaredLogger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Infow("database migrations applied")

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            sender_id TEXT NOT NULL,
            receiver_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'newRequest',
            live_status TEXT NOT NULL DEFAULT 'upcoming',
            start_time TIMESTAMPTZ NOT NULL,
            end_time TIMESTAMPTZ NOT NULL,
            actual_start_time TIMESTAMPTZ,
            actual_end_time TIMESTAMPTZ,
            note TEXT NOT NULL DEFAULT '',
            base_price NUMERIC NOT NULL DEFAULT 0,
            taxes NUMERIC NOT NULL DEFAULT 0,
            service_fee NUMERIC NOT NULL DEFAULT 0,
            total NUMERIC NOT NULL DEFAULT 0,
            checklist JSONB NOT NULL DEFAULT '[]',
            comments JSONB NOT NULL DEFAULT '[]',
            start_confirmed JSONB NOT NULL DEFAULT '[]',
            end_confirmed JSONB NOT NULL DEFAULT '[]',
            last_message_at TIMESTAMPTZ,
            last_message_by TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_participants
            ON sessions (sender_id, receiver_id);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            body TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session
            ON messages (session_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS read_receipts (
            session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            last_read_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY(session_id, user_id)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
