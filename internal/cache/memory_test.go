package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listing struct {
	Names []string `json:"names"`
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	key := NewKey(uuid.New(), NamespaceBatches, "list:page=1")

	require.NoError(t, c.Set(ctx, key, listing{Names: []string{"a", "b"}}, time.Minute))

	var got listing
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, got.Names)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	key := NewKey(uuid.New(), NamespaceAreas, "all")
	require.NoError(t, c.Set(ctx, key, listing{}, time.Minute))

	now = now.Add(2 * time.Minute)
	var got listing
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_InvalidateIsTenantAndNamespaceScoped(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	tenantA, tenantB := uuid.New(), uuid.New()

	batchesA := NewKey(tenantA, NamespaceBatches, "list")
	areasA := NewKey(tenantA, NamespaceAreas, "list")
	batchesB := NewKey(tenantB, NamespaceBatches, "list")
	for _, k := range []Key{batchesA, areasA, batchesB} {
		require.NoError(t, c.Set(ctx, k, listing{Names: []string{k.String()}}, 0))
	}

	require.NoError(t, c.Invalidate(ctx, tenantA, NamespaceBatches))

	var got listing
	found, _ := c.Get(ctx, batchesA, &got)
	assert.False(t, found)
	found, _ = c.Get(ctx, areasA, &got)
	assert.True(t, found)
	found, _ = c.Get(ctx, batchesB, &got)
	assert.True(t, found)
	assert.Equal(t, 2, c.Len())
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	key := NewKey(uuid.New(), NamespaceBatches, "x")
	require.NoError(t, c.Set(ctx, key, 1, 0))
	var v int
	found, err := c.Get(ctx, key, &v)
	require.NoError(t, err)
	assert.False(t, found)
}
