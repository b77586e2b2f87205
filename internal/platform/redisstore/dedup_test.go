package redisstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper()
	ctx := context.Background()

	seen, err := d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	// Checking alone does not consume the id.
	seen, err = d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, d.Mark(ctx, "evt_1"))

	seen, err = d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = d.Seen(ctx, "evt_2")
	require.NoError(t, err)
	require.False(t, seen)
}
