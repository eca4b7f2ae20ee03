package app

import (
	"math"
	"sync"
	"time"
)

// slidingWindowLimiter keeps a per-subject deque of request timestamps.
// Check prunes entries older than the window and either admits (recording
// now) or rejects with the seconds until the oldest entry falls out.
type slidingWindowLimiter struct {
	window time.Duration
	max    int

	mu       sync.RWMutex
	subjects map[string]*subjectWindow

	now func() time.Time
}

type subjectWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

func newSlidingWindowLimiter(window time.Duration, max int) *slidingWindowLimiter {
	return &slidingWindowLimiter{
		window:   window,
		max:      max,
		subjects: make(map[string]*subjectWindow),
		now:      time.Now,
	}
}

// Check admits or rejects one request for the subject. On rejection the
// returned retry-after is at least one second.
func (l *slidingWindowLimiter) Check(subject string) (retryAfterSeconds int64, ok bool) {
	l.mu.RLock()
	win := l.subjects[subject]
	l.mu.RUnlock()
	if win == nil {
		l.mu.Lock()
		win = l.subjects[subject]
		if win == nil {
			win = &subjectWindow{}
			l.subjects[subject] = win
		}
		l.mu.Unlock()
	}

	now := l.now()
	cutoff := now.Add(-l.window)

	win.mu.Lock()
	defer win.mu.Unlock()

	kept := win.timestamps[:0]
	for _, ts := range win.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	win.timestamps = kept

	if len(win.timestamps) >= l.max {
		oldest := win.timestamps[0]
		retry := int64(math.Ceil(l.window.Seconds() - now.Sub(oldest).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return retry, false
	}

	win.timestamps = append(win.timestamps, now)
	return 0, true
}

// evictIdle drops subjects whose whole window has expired; called from the
// cache sweep so the map does not grow without bound.
func (l *slidingWindowLimiter) evictIdle() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for subject, win := range l.subjects {
		win.mu.Lock()
		idle := len(win.timestamps) == 0 || !win.timestamps[len(win.timestamps)-1].After(cutoff)
		win.mu.Unlock()
		if idle {
			delete(l.subjects, subject)
		}
	}
}
