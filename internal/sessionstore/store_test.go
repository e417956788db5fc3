package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
)

func newTestSession(id string) Session {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Session{
		ID:              id,
		Owner:           "alice",
		ConfigurationID: "rtneuron",
		Status:          StatusScheduling,
		ProcessPID:      ProcessPIDUnset,
		Created:         now,
		ValidUntil:      now.Add(time.Hour),
	}
}

func TestMemoryStoreInsertConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, newTestSession("s1")))

	err := store.Insert(ctx, newTestSession("s1"))
	require.Error(t, err)
	assert.Equal(t, apierr.CodeConflict, apierr.As(err).Code)
}

func TestMemoryStoreDeleteThenGetNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, newTestSession("s1")))
	require.NoError(t, store.Delete(ctx, "s1"))

	_, err := store.Get(ctx, "s1")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeNotFound, apierr.As(err).Code)
}

func TestMemoryStoreUpdateAppliesMutator(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, newTestSession("s1")))

	updated, err := store.Update(ctx, "s1", func(s *Session) error {
		s.Status = StatusScheduled
		s.JobID = "1234"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, updated.Status)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, "1234", got.JobID)
}

func TestMemoryStoreUpdateMutatorErrorNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, newTestSession("s1")))

	_, err := store.Update(ctx, "s1", func(s *Session) error {
		s.Status = StatusFailed
		return apierr.Internal("boom")
	})
	require.Error(t, err)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduling, got.Status, "mutator error must not be persisted")
}

func TestMemoryStoreExpiredBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	expired := newTestSession("expired")
	expired.ValidUntil = now.Add(-time.Second)
	fresh := newTestSession("fresh")
	fresh.ValidUntil = now.Add(time.Hour)

	require.NoError(t, store.Insert(ctx, expired))
	require.NoError(t, store.Insert(ctx, fresh))

	got, err := store.ExpiredBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "expired", got[0].ID)
}

func TestMemoryStoreKeepAliveMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Insert(ctx, newTestSession("s1")))

	var last time.Time
	for i := 0; i < 3; i++ {
		updated, err := store.Update(ctx, "s1", func(s *Session) error {
			s.ValidUntil = s.ValidUntil.Add(time.Minute)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, !updated.ValidUntil.Before(last))
		last = updated.ValidUntil
	}
}
