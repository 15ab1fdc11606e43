// Package quota implements the per-user daily message ceiling. The counter
// lives in process memory and is owned by the gateway; sharding across
// processes would need a shared backing store.
package quota

import (
	"sync"
	"time"
)

// Tracker counts messages per owner, bucketed by UTC date. The bucket for
// past days is dropped lazily on the next increment.
type Tracker struct {
	mu     sync.Mutex
	limit  int
	date   string
	counts map[string]int
	now    func() time.Time
}

func NewTracker(dailyLimit int) *Tracker {
	return &Tracker{
		limit:  dailyLimit,
		counts: make(map[string]int),
		now:    time.Now,
	}
}

// NewTrackerAt is like NewTracker with an injectable clock for tests.
func NewTrackerAt(dailyLimit int, now func() time.Time) *Tracker {
	t := NewTracker(dailyLimit)
	t.now = now
	return t
}

// Allow increments the owner's counter for today (UTC) and reports whether
// the message is within the daily ceiling. A limit of 0 disables quota.
func (t *Tracker) Allow(owner string) bool {
	if t.limit <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().UTC().Format("2006-01-02")
	if today != t.date {
		// UTC date rollover: all counters reset.
		t.date = today
		t.counts = make(map[string]int)
	}

	t.counts[owner]++
	return t.counts[owner] <= t.limit
}

// Used returns the owner's count for the current UTC day.
func (t *Tracker) Used(owner string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.now().UTC().Format("2006-01-02") != t.date {
		return 0
	}
	return t.counts[owner]
}
