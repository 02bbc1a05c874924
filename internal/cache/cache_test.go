package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Memory(t *testing.T) {
	t.Parallel()

	t.Run("sets a key only once", func(t *testing.T) {
		t.Parallel()
		m := NewMemory(clockwork.NewFakeClock())
		ctx := context.Background()

		ok, err := m.SetNX(ctx, "k", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = m.SetNX(ctx, "k", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expires keys after their ttl", func(t *testing.T) {
		t.Parallel()
		clock := clockwork.NewFakeClock()
		m := NewMemory(clock)
		ctx := context.Background()

		require.NoError(t, m.Set(ctx, "k", time.Hour))
		exists, err := m.Exists(ctx, "k")
		require.NoError(t, err)
		assert.True(t, exists)

		clock.Advance(time.Hour)
		exists, err = m.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, exists)

		ok, err := m.SetNX(ctx, "k", 0)
		require.NoError(t, err)
		assert.True(t, ok)
		clock.Advance(365 * 24 * time.Hour)
		exists, err = m.Exists(ctx, "k")
		require.NoError(t, err)
		assert.True(t, exists, "keys without ttl never expire")
	})

	t.Run("deletes keys", func(t *testing.T) {
		t.Parallel()
		m := NewMemory(nil)
		ctx := context.Background()
		require.NoError(t, m.Set(ctx, "k", time.Minute))
		require.NoError(t, m.Delete(ctx, "k"))
		exists, err := m.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}
