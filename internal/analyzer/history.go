package analyzer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/threat"
)

// historyEntry is one recorded analysis outcome used for pattern lookup.
type historyEntry struct {
	threatType threat.Type
	severity   threat.Severity
	score      float64
	recordedAt time.Time
}

// HistoryStore keeps recent analysis outcomes per threat type so the
// historical estimator can anchor new scores against comparable events.
// The store is bounded per type; oldest entries are dropped first.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[threat.Type][]historyEntry
	window  time.Duration
	maxPer  int
	clock   clockwork.Clock
}

const defaultMaxPerType = 500

// NewHistoryStore creates a store retaining entries inside window.
func NewHistoryStore(window time.Duration, clock clockwork.Clock) *HistoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HistoryStore{
		entries: make(map[threat.Type][]historyEntry),
		window:  window,
		maxPer:  defaultMaxPerType,
		clock:   clock,
	}
}

// Record stores the outcome of a completed analysis.
func (h *HistoryStore) Record(ev *threat.Event, result *assessment.AnalysisResult) {
	if ev == nil || result == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[ev.Type], historyEntry{
		threatType: ev.Type,
		severity:   ev.Severity,
		score:      result.SeverityScore,
		recordedAt: h.clock.Now(),
	})
	if len(list) > h.maxPer {
		list = list[len(list)-h.maxPer:]
	}
	h.entries[ev.Type] = list
}

// Lookup returns the mean score of recent similar events and a confidence
// that grows with sample size. ok is false when no comparable history exists.
func (h *HistoryStore) Lookup(ev *threat.Event) (score, confidence float64, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := h.clock.Now().Add(-h.window)
	var sum float64
	var n int
	for _, e := range h.entries[ev.Type] {
		if e.recordedAt.Before(cutoff) {
			continue
		}
		// Similarity: same type always; same severity band counts double.
		weight := 1.0
		if e.severity == ev.Severity {
			weight = 2.0
		}
		sum += e.score * weight
		n += int(weight)
	}
	if n == 0 {
		return 0, 0, false
	}

	score = sum / float64(n)
	// Confidence saturates at 0.8 once 20 weighted samples exist.
	confidence = 0.8 * float64(n) / 20
	if confidence > 0.8 {
		confidence = 0.8
	}
	return score, confidence, true
}

// Size returns the number of retained entries, for health reporting.
func (h *HistoryStore) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, list := range h.entries {
		total += len(list)
	}
	return total
}
