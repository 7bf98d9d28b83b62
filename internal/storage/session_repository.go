package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionRepository records portal sessions and when they were last used.
type SessionRepository struct {
	BaseRepository
}

// NewSessionRepository creates a session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{BaseRepository: NewBaseRepository(db)}
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, id string) error {
	now := r.Unix()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO portal_sessions (id, created_at, last_seen_at) VALUES (?, ?, ?)
	`, id, now, now)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Touch updates last_seen_at and reports whether the session exists.
func (r *SessionRepository) Touch(ctx context.Context, id string) (bool, error) {
	res, err := r.DB().ExecContext(ctx, `
		UPDATE portal_sessions SET last_seen_at = ? WHERE id = ?
	`, r.Unix(), id)
	if err != nil {
		return false, fmt.Errorf("touching session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touching session: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of sessions.
func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM portal_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// DeleteIdle removes sessions last seen before the cutoff, along with their
// state, and returns their ids.
func (r *SessionRepository) DeleteIdle(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM portal_sessions WHERE last_seen_at < ?
		`, before.Unix())
		if err != nil {
			return fmt.Errorf("querying idle sessions: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning session: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM client_state WHERE namespace = ?`, id); err != nil {
				return fmt.Errorf("deleting state of %s: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM portal_sessions WHERE id = ?`, id); err != nil {
				return fmt.Errorf("deleting session %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
