package service

import (
	"context"
	"sync"
	"testing"
	"time"

	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, 1, time.Second)
	require.NoError(t, err)

	_, err = locks.Acquire(ctx, 1, 50*time.Millisecond)
	assert.ErrorIs(t, err, auctiondomain.ErrLockTimeout)

	release()

	release2, err := locks.Acquire(ctx, 1, 50*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := newKeyedMutex()
	ctx := context.Background()

	release1, err := locks.Acquire(ctx, 1, time.Second)
	require.NoError(t, err)
	defer release1()

	release2, err := locks.Acquire(ctx, 2, 50*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestKeyedMutexContextCancel(t *testing.T) {
	locks := newKeyedMutex()

	release, err := locks.Acquire(context.Background(), 1, time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locks.Acquire(ctx, 1, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyedMutexUnderContention(t *testing.T) {
	locks := newKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		max     int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, 7, 5*time.Second)
			if err != nil {
				return
			}
			mu.Lock()
			holders++
			if holders > max {
				max = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max, "at most one goroutine may hold the lock")

	locks.mu.Lock()
	remaining := len(locks.entries)
	locks.mu.Unlock()
	assert.Zero(t, remaining, "entries must be reclaimed after release")
}
