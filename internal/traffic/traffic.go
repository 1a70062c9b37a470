// Package traffic keeps sliding windows of companion-link message outcomes.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how far back any window can look.
const maxAge = 30 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordAccepted records an inbound message that decoded and applied.
func RecordAccepted() { defaultTracker.RecordAccepted() }

// RecordRejected records an inbound message discarded as malformed or unknown.
func RecordRejected() { defaultTracker.RecordRejected() }

// RecordDenied records an inbound message refused by the rate limiter (429).
func RecordDenied() { defaultTracker.RecordDenied() }

// Snapshot returns outcome counts within window.
func Snapshot(window time.Duration) Counts { return defaultTracker.Snapshot(window) }

// Reset clears all recorded outcomes. For tests and testing mode only.
func Reset() { defaultTracker.Reset() }

// Counts are outcome totals within one window.
type Counts struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Denied   int `json:"denied"`
}

// RejectedPct is the share of decoded-or-rejected messages that were rejected.
// Denials are excluded: they never reached the decoder. Returns 0 with no traffic.
func (c Counts) RejectedPct() int {
	total := c.Accepted + c.Rejected
	if total == 0 {
		return 0
	}
	return c.Rejected * 100 / total
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	accepted []time.Time
	rejected []time.Time
	denied   []time.Time
}

// NewTracker creates a Tracker reading time from now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

func (t *Tracker) RecordAccepted() { t.record(&t.accepted) }
func (t *Tracker) RecordRejected() { t.record(&t.rejected) }
func (t *Tracker) RecordDenied() { t.record(&t.denied) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// Snapshot returns outcome counts within the window ending now.
func (t *Tracker) Snapshot(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.pruneLocked(now)
	cutoff := now.Add(-window)
	return Counts{
		Accepted: countSince(t.accepted, cutoff),
		Rejected: countSince(t.rejected, cutoff),
		Denied:   countSince(t.denied, cutoff),
	}
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accepted = nil
	t.rejected = nil
	t.denied = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.accepted)
	prune(&t.rejected)
	prune(&t.denied)
}
