package enrich

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds the number of enrichment jobs running in one process.
// Each Orchestrator owns its own unless one is shared through WithSemaphore.
type Semaphore struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// NewSemaphore returns a semaphore with n slots. n below 1 is treated as 1.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// TryAcquire takes a slot without blocking. It reports false when every
// slot is held.
func (s *Semaphore) TryAcquire() bool {
	if !s.sem.TryAcquire(1) {
		return false
	}
	s.inFlight.Add(1)
	return true
}

// Release returns a slot taken by TryAcquire.
func (s *Semaphore) Release() {
	s.inFlight.Add(-1)
	s.sem.Release(1)
}

// InFlight is the number of slots currently held.
func (s *Semaphore) InFlight() int { return int(s.inFlight.Load()) }

// Size is the slot count.
func (s *Semaphore) Size() int { return s.size }
