package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	s.Run(ctx)
}

func TestScheduler_OneShotFires(t *testing.T) {
	s := New()
	var fired int32
	s.Post(func() { atomic.StoreInt32(&fired, 1) }, 10*time.Millisecond, 0)
	runFor(t, s, 100*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestScheduler_IntervalRepeats(t *testing.T) {
	s := New()
	var count int32
	s.Post(func() { atomic.AddInt32(&count, 1) }, 5*time.Millisecond, 10*time.Millisecond)
	runFor(t, s, 95*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(5))
}

func TestScheduler_CancelPreventsFiring(t *testing.T) {
	s := New()
	var fired int32
	id := s.Post(func() { atomic.StoreInt32(&fired, 1) }, 30*time.Millisecond, 0)
	s.Cancel(id)
	runFor(t, s, 80*time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestScheduler_CancelSelfStopsInterval(t *testing.T) {
	s := New()
	var count int32
	var id uint64
	var mu sync.Mutex
	mu.Lock()
	id = s.Post(func() {
		n := atomic.AddInt32(&count, 1)
		if n >= 3 {
			s.CancelSelf()
		}
	}, 5*time.Millisecond, 10*time.Millisecond)
	mu.Unlock()
	_ = id
	runFor(t, s, 150*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestScheduler_OrderingIsByDeliverTime(t *testing.T) {
	s := New()
	var order []int
	var mu sync.Mutex
	record := func(n int) func() {
		return func() {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}
	}
	s.Post(record(3), 30*time.Millisecond, 0)
	s.Post(record(1), 10*time.Millisecond, 0)
	s.Post(record(2), 20*time.Millisecond, 0)
	runFor(t, s, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, []int{1, 2, 3}, order)
}
