package enrich

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSemaphore_Ceiling(t *testing.T) {
	s := NewSemaphore(2)
	assert.True(t, s.TryAcquire())
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())
	assert.Equal(t, 2, s.InFlight())

	s.Release()
	assert.Equal(t, 1, s.InFlight())
	assert.True(t, s.TryAcquire())
}

func TestSemaphore_MinimumSize(t *testing.T) {
	s := NewSemaphore(0)
	assert.Equal(t, 1, s.Size())
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())
}

func TestSemaphore_Concurrent(t *testing.T) {
	s := NewSemaphore(3)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, acquired)
	assert.Equal(t, 3, s.InFlight())
}

func TestSemaphore_Independent(t *testing.T) {
	a, b := NewSemaphore(1), NewSemaphore(1)
	assert.True(t, a.TryAcquire())
	assert.True(t, b.TryAcquire())
}
