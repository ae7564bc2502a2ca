package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/podforge/podforge/internal/models"
)

// Store persists finished podcasts so the library survives restarts.
type Store struct {
	conn *sql.DB
}

func New(databaseURL string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS podcast_history (
			id         BIGSERIAL PRIMARY KEY,
			title      TEXT NOT NULL,
			mp3        TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Save records one finished podcast and returns the stored entry.
func (s *Store) Save(ctx context.Context, title, mp3 string) (*models.HistoryEntry, error) {
	entry := &models.HistoryEntry{Title: title, MP3: mp3}

	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO podcast_history (title, mp3)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		title, mp3,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save history entry: %w", err)
	}

	return entry, nil
}

// GetAll returns every saved podcast, newest first.
func (s *Store) GetAll(ctx context.Context) ([]models.HistoryEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, mp3, created_at
		FROM podcast_history
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var entry models.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.MP3, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Remove deletes one saved podcast by id.
func (s *Store) Remove(ctx context.Context, id int64) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM podcast_history WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove history entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
