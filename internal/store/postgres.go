package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const notifyChannel = "shortlink_kv_changes"

// notifyPayload is what travels through pg_notify. Values stay out of the
// payload (pg_notify caps it at ~8kB); the dispatcher re-reads the key and
// reconstructs the Change from its last observed value.
type notifyPayload struct {
	Key     string `json:"key"`
	Removed bool   `json:"removed"`
}

// PostgresStore is a Store backed by a single Postgres kv table. Change
// notifications ride LISTEN/NOTIFY, so separate processes connected to the
// same database observe each other's writes.
type PostgresStore struct {
	db       *sql.DB
	listener *pq.Listener

	mu       sync.Mutex
	subs     map[string]map[int]func(Change)
	lastSeen map[string]string
	nextID   int
}

// NewPostgresStore opens the database, verifies the connection and starts
// the notification listener.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	listener := pq.NewListener(databaseURL, 2*time.Second, time.Minute, nil)
	if err := listener.Listen(notifyChannel); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}

	s := &PostgresStore{
		db:       db,
		listener: listener,
		subs:     make(map[string]map[int]func(Change)),
		lastSeen: make(map[string]string),
	}
	go s.dispatchLoop()

	return s, nil
}

// RunMigrations applies the goose migrations for the kv table.
func RunMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// DB exposes the underlying connection so main can run migrations.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_store (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	if err := notify(ctx, tx, notifyPayload{Key: key}); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return tx.Commit()
	}

	if err := notify(ctx, tx, notifyPayload{Key: key, Removed: true}); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) Subscribe(key string, handler func(Change)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(Change))
		// Prime the baseline so the first notification carries an old value.
		if current, err := s.Get(context.Background(), key); err == nil {
			s.lastSeen[key] = current
		}
	}
	id := s.nextID
	s.nextID++
	s.subs[key][id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
	}
}

func (s *PostgresStore) Close() error {
	if err := s.listener.Close(); err != nil {
		log.Printf("Warning: failed to close listener: %v", err)
	}
	return s.db.Close()
}

func (s *PostgresStore) dispatchLoop() {
	for n := range s.listener.Notify {
		if n == nil {
			// Reconnect marker; subscribers may have missed updates, but
			// the next delivery re-reads current state anyway.
			continue
		}

		var payload notifyPayload
		if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
			log.Printf("Warning: dropping malformed notification: %v", err)
			continue
		}
		s.deliver(payload)
	}
}

func (s *PostgresStore) deliver(payload notifyPayload) {
	s.mu.Lock()
	handlers := make([]func(Change), 0, len(s.subs[payload.Key]))
	for _, h := range s.subs[payload.Key] {
		handlers = append(handlers, h)
	}
	old := s.lastSeen[payload.Key]
	s.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	var current string
	if !payload.Removed {
		value, err := s.Get(context.Background(), payload.Key)
		if err != nil && err != ErrKeyNotFound {
			log.Printf("Warning: failed to read %s after notification: %v", payload.Key, err)
			return
		}
		current = value
	}

	s.mu.Lock()
	s.lastSeen[payload.Key] = current
	s.mu.Unlock()

	dispatch(handlers, Change{
		Key:     payload.Key,
		Old:     old,
		New:     current,
		Removed: payload.Removed,
	})
}

func notify(ctx context.Context, tx *sql.Tx, payload notifyPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(data)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}
