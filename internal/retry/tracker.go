package retry

import (
	"sort"
	"sync"
)

// OperationStats tracks the attempts made for one named operation.
type OperationStats struct {
	Operation string `json:"operation"`
	Polls     int    `json:"polls"`    // Poll calls observed
	Attempts  int    `json:"attempts"` // Action invocations across all polls
	Retries   int    `json:"retries"`  // Attempts beyond the first of each poll
	Failures  int    `json:"failures"` // Polls whose last attempt was unsuccessful
}

// Tracker aggregates attempt counts per operation for the run report.
// It is thread-safe and can be used concurrently.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*OperationStats
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		stats: make(map[string]*OperationStats),
	}
}

// Observe returns an Observer that records one Poll call under operation.
// Call it once per Poll. A nil Tracker returns a nil Observer, which
// WithObserver ignores.
func (t *Tracker) Observe(operation string) Observer {
	if t == nil {
		return nil
	}
	failing := false
	return func(attempt int, ok bool) {
		t.record(operation, attempt, ok, &failing)
	}
}

func (t *Tracker) record(operation string, attempt int, ok bool, failing *bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, exists := t.stats[operation]
	if !exists {
		s = &OperationStats{Operation: operation}
		t.stats[operation] = s
	}

	if attempt == 1 {
		s.Polls++
	} else {
		s.Retries++
	}
	s.Attempts++

	// A poll counts as failed until one of its attempts succeeds.
	switch {
	case !ok && !*failing:
		s.Failures++
		*failing = true
	case ok && *failing:
		s.Failures--
		*failing = false
	}
}

// Stats returns a copy of every operation's stats, sorted by operation name.
func (t *Tracker) Stats() []OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]OperationStats, 0, len(t.stats))
	for _, s := range t.stats {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Operation < result[j].Operation
	})
	return result
}

// Total returns the number of action invocations across all operations.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, s := range t.stats {
		total += s.Attempts
	}
	return total
}

// Reset clears all recorded stats.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats = make(map[string]*OperationStats)
}
