// Package scheduler implements the cooperative single-threaded timer queue
// that owns all call state after setup (§5). There is no async runtime here
// by design: a min-heap of scheduled jobs plus a wake channel beats a
// goroutine-per-timer model for a call with a handful of live timers.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is the callable posted to the scheduler. It runs on the scheduler's
// single goroutine; it must never block on sockets or audio I/O (§5).
type Job func()

type job struct {
	id       uint64
	deliverAt time.Time
	interval time.Duration
	fn       Job
	index    int
	canceled bool
}

type jobHeap []*job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].deliverAt.Before(h[j].deliverAt) }
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Scheduler is the "message thread" of §5: a single-threaded cooperative
// loop over a time-ordered set of jobs. Post/Cancel are safe to call from
// any goroutine; Job callables themselves always run on the scheduler's own
// goroutine, so call state they touch needs no locking.
type Scheduler struct {
	mu      sync.Mutex
	heap    jobHeap
	byID    map[uint64]*job
	nextID  uuidSource
	wake    chan struct{}
	running *job // job currently executing, for CancelSelf
}

type uuidSource struct {
	mu   sync.Mutex
	next uint64
}

func (u *uuidSource) take() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.next++
	return u.next
}

// New creates a Scheduler. Call Run in its own goroutine to start the loop.
func New() *Scheduler {
	return &Scheduler{
		byID: make(map[uint64]*job),
		wake: make(chan struct{}, 1),
	}
}

// Post schedules fn to run after delay, and then every interval thereafter
// if interval > 0. It returns an id usable with Cancel.
func (s *Scheduler) Post(fn Job, delay, interval time.Duration) uint64 {
	id := s.nextID.take()
	j := &job{id: id, deliverAt: time.Now().Add(delay), interval: interval, fn: fn}

	s.mu.Lock()
	s.byID[id] = j
	heap.Push(&s.heap, j)
	s.mu.Unlock()

	s.signalWake()
	return id
}

// Cancel prevents a posted job (found by id) from running again. Canceling
// an already-fired one-shot or an unknown id is a no-op.
func (s *Scheduler) Cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return
	}
	j.canceled = true
	delete(s.byID, id)
}

// CancelSelf cancels the job currently executing; it must be called from
// within that job's own callback.
func (s *Scheduler) CancelSelf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != nil {
		s.running.canceled = true
		delete(s.byID, s.running.id)
	}
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run executes the scheduler loop until ctx is canceled. It delivers every
// job whose deliverAt has passed, re-queueing intervaled ones, then sleeps
// until the next deadline or a Post wakes it early.
func (s *Scheduler) Run(ctx context.Context) {
	logger := logrus.WithFields(logrus.Fields{"function": "Scheduler.Run", "package": "scheduler"})
	for {
		select {
		case <-ctx.Done():
			logger.Debug("scheduler context canceled, exiting")
			return
		default:
		}

		now := time.Now()
		var sleepFor time.Duration = time.Hour

		s.mu.Lock()
		for s.heap.Len() > 0 && !s.heap[0].deliverAt.After(now) {
			j := heap.Pop(&s.heap).(*job)
			if j.canceled {
				continue
			}
			s.running = j
			s.mu.Unlock()
			j.fn()
			s.mu.Lock()
			s.running = nil

			if j.interval > 0 && !j.canceled {
				j.deliverAt = j.deliverAt.Add(j.interval)
				if j.deliverAt.Before(time.Now()) {
					j.deliverAt = time.Now().Add(j.interval)
				}
				heap.Push(&s.heap, j)
			} else {
				delete(s.byID, j.id)
			}
		}
		if s.heap.Len() > 0 {
			sleepFor = time.Until(s.heap[0].deliverAt)
			if sleepFor < 0 {
				sleepFor = 0
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}
