package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StateRepository stores per-session key/value state.
type StateRepository struct {
	BaseRepository
}

// NewStateRepository creates a state repository.
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{BaseRepository: NewBaseRepository(db)}
}

// Get returns the value stored under namespace/key.
func (r *StateRepository) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := r.DB().QueryRowContext(ctx, `
		SELECT value FROM client_state WHERE namespace = ? AND key = ?
	`, namespace, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying state: %w", err)
	}
	return value, true, nil
}

// Set upserts namespace/key.
func (r *StateRepository) Set(ctx context.Context, namespace, key, value string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO client_state (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, namespace, key, value, r.Unix())
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// Delete removes namespace/key.
func (r *StateRepository) Delete(ctx context.Context, namespace, key string) error {
	_, err := r.DB().ExecContext(ctx, `
		DELETE FROM client_state WHERE namespace = ? AND key = ?
	`, namespace, key)
	if err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	return nil
}

// Clear removes every key in namespace.
func (r *StateRepository) Clear(ctx context.Context, namespace string) error {
	if _, err := r.DB().ExecContext(ctx, `DELETE FROM client_state WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("clearing state: %w", err)
	}
	return nil
}
