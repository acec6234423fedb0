package internal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
)

// unusedStore fails the test, when a process instance must be loaded.
type unusedStore struct {
	Store
}

func newInstanceState(id int64) *instanceState {
	return &instanceState{
		instance: &ProcessInstanceEntity{
			Id:        id,
			State:     engine.InstanceActive,
			Variables: map[string]any{"a": float64(1)},
		},
	}
}

func TestInstanceStore(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()

	t.Run("create and execute", func(t *testing.T) {
		var flushes int
		s := NewInstanceStore(unusedStore{}, func(_ context.Context, _ *Batch) error {
			flushes++
			return nil
		})

		state := newInstanceState(1)
		require.NoError(t, s.Create(ctx, state, func(state *instanceState, batch *Batch) error {
			batch.PutProcessInstance(state.instance)
			return nil
		}))
		assert.Equal(1, s.Len())
		assert.Equal(1, flushes)

		require.NoError(t, s.Execute(ctx, 1, func(state *instanceState, batch *Batch) error {
			return state.mergeVariables(map[string]any{"b": "x", "a": nil}, batch)
		}))
		assert.Equal(2, flushes)

		require.NoError(t, s.Execute(ctx, 1, func(state *instanceState, _ *Batch) error {
			assert.Equal(map[string]any{"b": "x"}, state.instance.Variables)
			return nil
		}))
		assert.Equal(2, flushes) // empty batch is not flushed
	})

	t.Run("failed trigger keeps cached state", func(t *testing.T) {
		s := NewInstanceStore(unusedStore{}, func(context.Context, *Batch) error { return nil })
		require.NoError(t, s.Create(ctx, newInstanceState(1), func(*instanceState, *Batch) error { return nil }))

		triggerErr := errors.New("trigger failed")
		err := s.Execute(ctx, 1, func(state *instanceState, batch *Batch) error {
			state.instance.Variables["a"] = float64(2)
			state.addOpen(&ActivityInstanceEntity{Id: 10})
			return triggerErr
		})
		assert.ErrorIs(err, triggerErr)

		require.NoError(t, s.Execute(ctx, 1, func(state *instanceState, _ *Batch) error {
			assert.Equal(float64(1), state.instance.Variables["a"])
			assert.Empty(state.open)
			return nil
		}))
	})

	t.Run("failed flush drops cached state", func(t *testing.T) {
		flushErr := errors.New("flush failed")

		var fail bool
		s := NewInstanceStore(unusedStore{}, func(context.Context, *Batch) error {
			if fail {
				return flushErr
			}
			return nil
		})
		require.NoError(t, s.Create(ctx, newInstanceState(1), func(*instanceState, *Batch) error { return nil }))

		var afterFlush bool

		fail = true
		err := s.Execute(ctx, 1, func(state *instanceState, batch *Batch) error {
			batch.AfterFlush(func() { afterFlush = true })
			return state.mergeVariables(map[string]any{"a": float64(2)}, batch)
		})
		assert.ErrorIs(err, flushErr)
		assert.False(afterFlush)
		assert.Equal(0, s.Len())
	})

	t.Run("after flush callbacks", func(t *testing.T) {
		s := NewInstanceStore(unusedStore{}, func(context.Context, *Batch) error { return nil })
		require.NoError(t, s.Create(ctx, newInstanceState(1), func(*instanceState, *Batch) error { return nil }))

		var afterFlush bool
		require.NoError(t, s.Execute(ctx, 1, func(state *instanceState, batch *Batch) error {
			batch.AfterFlush(func() { afterFlush = true })
			return state.mergeVariables(map[string]any{"a": float64(2)}, batch)
		}))
		assert.True(afterFlush)
	})

	t.Run("evicts ended process instance", func(t *testing.T) {
		s := NewInstanceStore(unusedStore{}, func(context.Context, *Batch) error { return nil })
		require.NoError(t, s.Create(ctx, newInstanceState(1), func(*instanceState, *Batch) error { return nil }))
		require.NoError(t, s.Create(ctx, newInstanceState(2), func(*instanceState, *Batch) error { return nil }))
		assert.Equal(2, s.Len())

		require.NoError(t, s.Execute(ctx, 1, func(state *instanceState, batch *Batch) error {
			state.instance.State = engine.InstanceCompleted
			batch.PutProcessInstance(state.instance)
			return nil
		}))
		assert.Equal(1, s.Len())
	})

	t.Run("serializes execution per process instance", func(t *testing.T) {
		s := NewInstanceStore(unusedStore{}, func(context.Context, *Batch) error { return nil })

		state := newInstanceState(1)
		state.instance.Variables = map[string]any{"n": 0}
		require.NoError(t, s.Create(ctx, state, func(*instanceState, *Batch) error { return nil }))

		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Execute(ctx, 1, func(state *instanceState, batch *Batch) error {
					state.instance.Variables["n"] = state.instance.Variables["n"].(int) + 1
					batch.PutProcessInstance(state.instance)
					return nil
				})
			}()
		}
		wg.Wait()

		require.NoError(t, s.Execute(ctx, 1, func(state *instanceState, _ *Batch) error {
			assert.Equal(100, state.instance.Variables["n"])
			return nil
		}))
		assert.Equal(1, s.Len())
	})
}
