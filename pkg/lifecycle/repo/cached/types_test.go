package cached_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EGF2/file/pkg/lifecycle"
	"github.com/EGF2/file/pkg/lifecycle/repo/cached"
)

type countingResolver struct {
	mu    sync.Mutex
	types map[string]string
	calls map[string]int
	err   error
}

func (c *countingResolver) GetObjectType(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[id]++
	if c.err != nil {
		return "", c.err
	}
	typ, ok := c.types[id]
	if !ok {
		return "", lifecycle.ErrObjectNotFound
	}
	return typ, nil
}

func newCounting() *countingResolver {
	return &countingResolver{
		types: map[string]string{"a1": "file", "u1": "user"},
		calls: map[string]int{},
	}
}

func TestTypeResolver_CachesHits(t *testing.T) {
	next := newCounting()
	r := cached.NewTypeResolver(next, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		typ, err := r.GetObjectType(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "file", typ)
	}
	assert.Equal(t, 1, next.calls["a1"])
	assert.Equal(t, 1, r.Len())

	r.Forget("a1")
	_, err := r.GetObjectType(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls["a1"])
}

func TestTypeResolver_DoesNotCacheMisses(t *testing.T) {
	next := newCounting()
	r := cached.NewTypeResolver(next, 10, time.Minute)
	ctx := context.Background()

	_, err := r.GetObjectType(ctx, "missing")
	assert.ErrorIs(t, err, lifecycle.ErrObjectNotFound)
	_, err = r.GetObjectType(ctx, "missing")
	assert.ErrorIs(t, err, lifecycle.ErrObjectNotFound)
	assert.Equal(t, 2, next.calls["missing"])

	next.err = errors.New("boom")
	_, err = r.GetObjectType(ctx, "u1")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, r.Len())
}

func TestTypeResolver_Evicts(t *testing.T) {
	next := newCounting()
	r := cached.NewTypeResolver(next, 1, time.Minute)
	ctx := context.Background()

	_, err := r.GetObjectType(ctx, "a1")
	require.NoError(t, err)
	_, err = r.GetObjectType(ctx, "u1")
	require.NoError(t, err)
	_, err = r.GetObjectType(ctx, "a1")
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls["a1"])
	assert.Equal(t, 1, r.Len())
}
