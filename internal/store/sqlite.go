package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		room TEXT NOT NULL DEFAULT 'general',
		text TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		emotion TEXT,
		emotion_scores TEXT,
		entities TEXT,
		aspect_sentiment TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id);

	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS analytics (
		room TEXT NOT NULL,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		bucket INTEGER NOT NULL,
		PRIMARY KEY (room, kind, key, bucket)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// isSQLiteConflict reports whether the error is a SQLITE_BUSY or
// "database is locked" error worth retrying.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessage persists a message. The database assigns the surrogate ID;
// the timestamp is set to now if the caller left it zero. Retries on
// SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	scores, err := json.Marshal(msg.EmotionScores)
	if err != nil {
		return fmt.Errorf("marshal emotion scores: %w", err)
	}
	entities, err := json.Marshal(msg.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	aspects, err := json.Marshal(msg.AspectSentiment)
	if err != nil {
		return fmt.Errorf("marshal aspect sentiment: %w", err)
	}

	query := `
	INSERT INTO messages (username, room, text, timestamp, emotion, emotion_scores, entities, aspect_sentiment)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		result, err := s.db.ExecContext(ctx, query,
			msg.Username, msg.Room, msg.Text, msg.Timestamp.UnixMilli(),
			msg.Emotion, string(scores), string(entities), string(aspects),
		)
		if err == nil {
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("message insert id: %w", err)
			}
			msg.ID = id
			return nil
		}

		lastErr = err
		if isSQLiteConflict(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("SaveMessage hit SQLITE_BUSY, retrying",
				"room", msg.Room,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}

	return fmt.Errorf("insert message: %w", lastErr)
}

// RecentMessages retrieves up to limit messages for a room, newest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, username, room, text, timestamp, emotion, emotion_scores, entities, aspect_sentiment
		FROM messages WHERE room = ? ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent messages rows", "error", closeErr)
		}
	}()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	return messages, nil
}

func scanMessage(rows *sql.Rows) (domain.Message, error) {
	var msg domain.Message
	var ts int64
	var emotion, scores, entities, aspects sql.NullString

	if err := rows.Scan(
		&msg.ID, &msg.Username, &msg.Room, &msg.Text, &ts,
		&emotion, &scores, &entities, &aspects,
	); err != nil {
		return domain.Message{}, fmt.Errorf("scan message row: %w", err)
	}

	msg.Timestamp = time.UnixMilli(ts).UTC()
	msg.Emotion = emotion.String
	msg.EmotionScores = map[string]float64{}
	msg.Entities = []domain.Entity{}
	msg.AspectSentiment = map[string]string{}

	if scores.Valid && scores.String != "" {
		if err := json.Unmarshal([]byte(scores.String), &msg.EmotionScores); err != nil {
			return domain.Message{}, fmt.Errorf("unmarshal emotion scores: %w", err)
		}
	}
	if entities.Valid && entities.String != "" {
		if err := json.Unmarshal([]byte(entities.String), &msg.Entities); err != nil {
			return domain.Message{}, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	if aspects.Valid && aspects.String != "" {
		if err := json.Unmarshal([]byte(aspects.String), &msg.AspectSentiment); err != nil {
			return domain.Message{}, fmt.Errorf("unmarshal aspect sentiment: %w", err)
		}
	}

	return msg, nil
}

// UpsertUser creates the user if absent and bumps last_active.
func (s *SQLiteStore) UpsertUser(ctx context.Context, username string) (*domain.User, error) {
	now := time.Now().UTC()
	query := `
	INSERT INTO users (username, created_at, last_active, message_count)
	VALUES (?, ?, ?, 0)
	ON CONFLICT(username) DO UPDATE SET
		last_active = excluded.last_active`

	if _, err := s.db.ExecContext(ctx, query, username, now.Unix(), now.Unix()); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT username, created_at, last_active, message_count FROM users WHERE username = ?`,
		username)

	var user domain.User
	var createdAt, lastActive int64
	if err := row.Scan(&user.Username, &createdAt, &lastActive, &user.MessageCount); err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.LastActive = time.Unix(lastActive, 0).UTC()

	return &user, nil
}

// TouchUser updates the user's last_active timestamp.
func (s *SQLiteStore) TouchUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_active = ? WHERE username = ?`,
		time.Now().UTC().Unix(), username)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchUser affected 0 rows", "username", username)
	}

	return nil
}

// IncrementMessageCount increments the user's message count and bumps
// last_active.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET message_count = message_count + 1, last_active = ? WHERE username = ?`,
		time.Now().UTC().Unix(), username)
	if err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("IncrementMessageCount affected 0 rows", "username", username)
	}

	return nil
}

// RecordAnalysis accumulates hourly per-room analytics counts for the
// emotion, entities, and sentiments of one analyzed message.
func (s *SQLiteStore) RecordAnalysis(ctx context.Context, room string, a domain.Analysis, bucket time.Time) error {
	hour := bucket.UTC().Truncate(time.Hour).Unix()

	type row struct {
		kind string
		key  string
	}
	var inserts []row

	if a.Emotion != "" {
		inserts = append(inserts, row{kind: "emotion", key: a.Emotion})
	}
	for _, ent := range a.Entities {
		inserts = append(inserts, row{kind: "entity", key: ent.Text})
	}
	for _, sentiment := range a.AspectSentiment {
		inserts = append(inserts, row{kind: "sentiment", key: sentiment})
	}
	if len(inserts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin analytics tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
	INSERT INTO analytics (room, kind, key, count, bucket)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT(room, kind, key, bucket) DO UPDATE SET
		count = count + 1`

	for _, r := range inserts {
		if _, err := tx.ExecContext(ctx, query, room, r.kind, r.key, hour); err != nil {
			return fmt.Errorf("upsert analytics bucket: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit analytics tx: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
