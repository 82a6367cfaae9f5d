package ratelimit

import (
	"sync"
	"time"
)

// Limiter spaces outgoing feed requests
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed
	Wait()
	// Reset forgets all recorded grants
	Reset()
}

// SlidingWindow grants up to budget requests per rolling interval. Grant
// times are retained and aged out as the window moves, so a page-fetch
// burst at the start of a backfill delays later requests instead of
// failing them.
type SlidingWindow struct {
	budget int
	window time.Duration

	mu      sync.Mutex
	granted []time.Time
}

// NewSlidingWindow creates a limiter granting budget requests per window
func NewSlidingWindow(budget int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		budget:  budget,
		window:  window,
		granted: make([]time.Time, 0, budget),
	}
}

// Allow records and grants a request slot if the budget has room
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.prune(now)

	if len(sw.granted) >= sw.budget {
		return false
	}
	sw.granted = append(sw.granted, now)
	return true
}

// Wait blocks until the oldest grant ages out of the window
func (sw *SlidingWindow) Wait() {
	for !sw.Allow() {
		sw.mu.Lock()
		var sleep time.Duration
		if len(sw.granted) > 0 {
			sleep = sw.window - time.Since(sw.granted[0])
		}
		sw.mu.Unlock()

		if sleep <= 0 {
			sleep = 10 * time.Millisecond
		}
		time.Sleep(sleep)
	}
}

// Reset forgets every recorded grant
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.granted = sw.granted[:0]
}

// prune drops grants that have aged out of the window
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.granted) && sw.granted[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		sw.granted = append(sw.granted[:0], sw.granted[i:]...)
	}
}
