package quota

import (
	"testing"
	"time"
)

func TestAllow_UnderLimit(t *testing.T) {
	tr := NewTracker(3)
	for i := 0; i < 3; i++ {
		if !tr.Allow("alice") {
			t.Fatalf("message %d should be allowed", i+1)
		}
	}
	if tr.Allow("alice") {
		t.Fatalf("message 4 should be rejected at limit 3")
	}
}

func TestAllow_ZeroLimitDisables(t *testing.T) {
	tr := NewTracker(0)
	for i := 0; i < 100; i++ {
		if !tr.Allow("alice") {
			t.Fatalf("limit 0 must never reject")
		}
	}
}

func TestAllow_PerOwnerCounters(t *testing.T) {
	tr := NewTracker(1)
	if !tr.Allow("alice") {
		t.Fatalf("alice's first message should be allowed")
	}
	if !tr.Allow("bob") {
		t.Fatalf("bob's counter is independent of alice's")
	}
	if tr.Allow("alice") {
		t.Fatalf("alice's second message should be rejected")
	}
}

func TestAllow_UTCRollover(t *testing.T) {
	clock := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	tr := NewTrackerAt(2, func() time.Time { return clock })

	tr.Allow("alice")
	tr.Allow("alice")
	if tr.Allow("alice") {
		t.Fatalf("should be rejected before rollover")
	}

	clock = clock.Add(2 * time.Minute) // crosses midnight UTC
	if !tr.Allow("alice") {
		t.Fatalf("counter should reset after UTC date rollover")
	}
	if got := tr.Used("alice"); got != 1 {
		t.Fatalf("expected 1 used after rollover, got %d", got)
	}
}

func TestUsed_StaleDateReadsZero(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTrackerAt(5, func() time.Time { return clock })

	tr.Allow("alice")
	if got := tr.Used("alice"); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}

	clock = clock.Add(24 * time.Hour)
	if got := tr.Used("alice"); got != 0 {
		t.Fatalf("yesterday's count must not leak into today, got %d", got)
	}
}
