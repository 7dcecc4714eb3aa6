package memmap_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/memmap"
)

func TestCoordinatorSerializesSameAddress(t *testing.T) {
	c := memmap.NewCoordinator(2)
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	enter := func() {
		mu.Lock()
		inside++
		if inside > maxSeen {
			maxSeen = inside
		}
		mu.Unlock()
	}
	leave := func() {
		mu.Lock()
		inside--
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for thread := 0; thread < 2; thread++ {
		thread := thread
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.Acquire(context.Background(), thread, 0x1000)
			require.NoError(t, err)
			enter()
			time.Sleep(10 * time.Millisecond)
			leave()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestCoordinatorAllowsDistinctAddressesConcurrently(t *testing.T) {
	c := memmap.NewCoordinator(2)
	release0, err := c.Acquire(context.Background(), 0, 0x1000)
	require.NoError(t, err)
	defer release0()

	done := make(chan struct{})
	go func() {
		release1, err := c.Acquire(context.Background(), 1, 0x2000)
		require.NoError(t, err)
		release1()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a distinct address blocked on an unrelated holder")
	}
}

func TestCoordinatorAcquireRespectsCancellation(t *testing.T) {
	c := memmap.NewCoordinator(2)
	release0, err := c.Acquire(context.Background(), 0, 0x1000)
	require.NoError(t, err)
	defer release0()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Acquire(ctx, 1, 0x1000)
	assert.Error(t, err)
}
