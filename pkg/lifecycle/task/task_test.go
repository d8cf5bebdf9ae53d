package task_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EGF2/file/pkg/lifecycle/task"
)

func TestJoinWaitsForAll(t *testing.T) {
	var done atomic.Int32
	results := task.Join(context.Background(), 5, func(ctx context.Context, i int) (int, error) {
		time.Sleep(time.Duration(5-i) * time.Millisecond)
		done.Add(1)
		return i * i, nil
	})

	require.Len(t, results, 5)
	assert.Equal(t, int32(5), done.Load())
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i*i, r.Value)
		assert.True(t, r.OK())
	}
	assert.NoError(t, task.FirstError(results))
}

func TestJoinKeepsFailuresPerTask(t *testing.T) {
	boom := errors.New("boom")
	results := task.Join(context.Background(), 4, func(ctx context.Context, i int) (string, error) {
		if i%2 == 1 {
			return "", boom
		}
		return "ok", nil
	})

	assert.ErrorIs(t, task.FirstError(results), boom)
	assert.Equal(t, []string{"ok", "ok"}, task.Values(results))
	assert.False(t, results[1].OK())
	assert.False(t, results[3].OK())
	assert.ErrorIs(t, task.Errors(results), boom)
}

func TestJoinRecoversPanics(t *testing.T) {
	results := task.Join(context.Background(), 2, func(ctx context.Context, i int) (int, error) {
		if i == 1 {
			panic("bad input")
		}
		return 1, nil
	})

	assert.True(t, results[0].OK())
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "panicked")
}

func TestMapPreservesOrder(t *testing.T) {
	in := []string{"a", "bb", "ccc"}
	results := task.Map(context.Background(), in, func(ctx context.Context, s string) (int, error) {
		return len(s), nil
	})
	assert.Equal(t, []int{1, 2, 3}, task.Values(results))
}

func TestJoinZeroTasks(t *testing.T) {
	results := task.Join(context.Background(), 0, func(ctx context.Context, i int) (int, error) {
		t.Fatal("must not run")
		return 0, nil
	})
	assert.Empty(t, results)
	assert.NoError(t, task.Errors(results))
}
