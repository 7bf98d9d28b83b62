package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, RunMigrations(context.Background(), db, nil))
	return db
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, RunMigrations(context.Background(), db, nil))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestStateRepository(t *testing.T) {
	repo := NewStateRepository(newTestDB(t))
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "s1", "auth.token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "s1", "auth.token", "first"))
	require.NoError(t, repo.Set(ctx, "s1", "auth.token", "second"))
	require.NoError(t, repo.Set(ctx, "s1", "auth.role", "admin"))
	require.NoError(t, repo.Set(ctx, "s2", "auth.token", "other"))

	v, ok, err := repo.Get(ctx, "s1", "auth.token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	require.NoError(t, repo.Delete(ctx, "s1", "auth.role"))
	_, ok, _ = repo.Get(ctx, "s1", "auth.role")
	assert.False(t, ok)

	require.NoError(t, repo.Clear(ctx, "s1"))
	_, ok, _ = repo.Get(ctx, "s1", "auth.token")
	assert.False(t, ok)

	v, _, _ = repo.Get(ctx, "s2", "auth.token")
	assert.Equal(t, "other", v)
}

func TestSessionRepository_TouchAndExpire(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionRepository(db)
	state := NewStateRepository(db)
	ctx := context.Background()

	known, err := sessions.Touch(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, sessions.Create(ctx, "old"))
	require.NoError(t, state.Set(ctx, "old", "auth.token", "tok"))

	known, err = sessions.Touch(ctx, "old")
	require.NoError(t, err)
	assert.True(t, known)

	// Pretend "fresh" was seen later than the cutoff.
	sessions.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, sessions.Create(ctx, "fresh"))

	ids, err := sessions.DeleteIdle(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	n, err := sessions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, _ := state.Get(ctx, "old", "auth.token")
	assert.False(t, ok)
}
