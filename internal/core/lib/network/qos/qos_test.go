package qos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BoundsConcurrency(t *testing.T) {
	l := NewLimiter("actions", 3)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			defer l.Release()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, l.Peak(), 3)
	assert.Equal(t, 0, l.InFlight())
	assert.Equal(t, 3, l.Capacity())
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	l := NewLimiter("ports", 1)
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, 1, l.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()
	assert.Equal(t, 0, l.InFlight())
}

func TestLimiter_MinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, NewLimiter("zero", 0).Capacity())
}
