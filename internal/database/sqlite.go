package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	level INTEGER NOT NULL DEFAULT 5,
	class_level TEXT,
	parent_feedback TEXT,
	total_attempts INTEGER NOT NULL DEFAULT 0 CHECK (total_attempts >= 0),
	correct_attempts INTEGER NOT NULL DEFAULT 0 CHECK (correct_attempts >= 0),
	score REAL NOT NULL DEFAULT 0,
	current_streak INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
	max_streak INTEGER NOT NULL DEFAULT 0 CHECK (max_streak >= 0),
	total_time_taken REAL,
	created_at INTEGER NOT NULL DEFAULT (unixepoch()),
	CHECK (correct_attempts <= total_attempts)
);

CREATE TABLE IF NOT EXISTS chats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
	text TEXT,
	image TEXT,
	user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
	time_taken REAL,
	created_at INTEGER NOT NULL DEFAULT (unixepoch())
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id) WHERE user_id IS NOT NULL;
`

// IsSQLiteURL reports whether databaseURL selects the embedded backend.
func IsSQLiteURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "sqlite://") || strings.HasPrefix(databaseURL, "file:")
}

// NewSQLite opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func NewSQLite(path string) (*sql.DB, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "file:")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps writes serialized
	// without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
