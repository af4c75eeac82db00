package ratelimiter

import (
	"sync"
	"time"
)

type Limiter interface {
	Allow(source string) (bool, time.Duration)
}

// FixedWindow counts requests per source within a fixed window. Counters
// for idle sources are dropped by a background cleanup tick.
type FixedWindow struct {
	mu     sync.Mutex
	counts map[string]*windowCount
	limit  int
	window time.Duration
	done   chan struct{}
}

type windowCount struct {
	count   int
	resetAt time.Time
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	rl := &FixedWindow{
		counts: make(map[string]*windowCount),
		limit:  limit,
		window: window,
		done:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *FixedWindow) Allow(source string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	wc, ok := rl.counts[source]
	if !ok || now.After(wc.resetAt) {
		rl.counts[source] = &windowCount{count: 1, resetAt: now.Add(rl.window)}
		return true, 0
	}

	if wc.count >= rl.limit {
		return false, time.Until(wc.resetAt)
	}

	wc.count++
	return true, 0
}

func (rl *FixedWindow) cleanupLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for source, wc := range rl.counts {
				if now.After(wc.resetAt) {
					delete(rl.counts, source)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *FixedWindow) Stop() {
	close(rl.done)
}
