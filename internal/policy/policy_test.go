package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLazyCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1000)

	p, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, p.SessionCreationEnabled)
	assert.Equal(t, 1000, p.KeepAliveTimeoutSeconds)
}

func TestMemoryStoreSuspendResumeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1000)

	p, err := store.Suspend(ctx)
	require.NoError(t, err)
	assert.False(t, p.SessionCreationEnabled)

	p, err = store.Suspend(ctx)
	require.NoError(t, err)
	assert.False(t, p.SessionCreationEnabled)

	p, err = store.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, p.SessionCreationEnabled)

	p, err = store.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, p.SessionCreationEnabled)
}
