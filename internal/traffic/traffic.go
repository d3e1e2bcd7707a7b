package traffic

import (
	"sync"
	"time"
)

// retention bounds how far back outcomes are kept regardless of the queried window.
const retention = 5 * time.Minute

// Tracker keeps sliding windows of upstream call outcomes, keyed by upstream name.
// The health endpoint reads ErrorRate to decide whether the service is degraded.
// A nil *Tracker is valid and records nothing.
type Tracker struct {
	mu       sync.Mutex
	outcomes map[string]*window
	now      func() time.Time
}

type window struct {
	successTimes []time.Time
	errorTimes   []time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{outcomes: make(map[string]*window), now: time.Now}
}

// RecordSuccess records a successful outcome for the named upstream.
func (t *Tracker) RecordSuccess(name string) {
	t.record(name, true)
}

// RecordError records a failed outcome (transport or logic) for the named upstream.
func (t *Tracker) RecordError(name string) {
	t.record(name, false)
}

// Record records ok as a success and !ok as an error.
func (t *Tracker) Record(name string, ok bool) {
	t.record(name, ok)
}

// ErrorRate returns (errorCount, totalCount) for the named upstream within the window.
func (t *Tracker) ErrorRate(name string, window time.Duration) (errors, total int) {
	if t == nil {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.outcomes[name]
	if !ok {
		return 0, 0
	}
	cutoff := t.now().Add(-window)
	errCount := countInWindow(w.errorTimes, cutoff)
	successCount := countInWindow(w.successTimes, cutoff)
	return errCount, errCount + successCount
}

// Names returns the upstream names that have recorded at least one outcome.
func (t *Tracker) Names() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.outcomes))
	for name := range t.outcomes {
		names = append(names, name)
	}
	return names
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = make(map[string]*window)
}

func (t *Tracker) record(name string, ok bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w, exists := t.outcomes[name]
	if !exists {
		w = &window{}
		t.outcomes[name] = w
	}
	now := t.now()
	if ok {
		w.successTimes = append(w.successTimes, now)
	} else {
		w.errorTimes = append(w.errorTimes, now)
	}
	w.prune(now.Add(-retention))
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// prune drops timestamps older than cutoff. Must be called with the tracker mutex held.
func (w *window) prune(cutoff time.Time) {
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&w.successTimes)
	prune(&w.errorTimes)
}
