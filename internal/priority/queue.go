package priority

import (
	"sort"
	"sync"

	"github.com/skywatch/backend/pkg/assessment"
)

// RankedQueue is a bounded, mutex-guarded collection of priority scores kept
// in descending score order. Upserts replace an existing entry by threat id;
// when capacity is exceeded the lowest-ranked entry is evicted first.
type RankedQueue struct {
	mu       sync.RWMutex
	capacity int
	byID     map[string]*assessment.PriorityScore
	ordered  []*assessment.PriorityScore
}

// NewRankedQueue creates a queue holding at most capacity entries.
func NewRankedQueue(capacity int) *RankedQueue {
	return &RankedQueue{
		capacity: capacity,
		byID:     make(map[string]*assessment.PriorityScore, capacity),
	}
}

// Upsert inserts or replaces the score for its threat id, maintaining order
// and the capacity bound.
func (q *RankedQueue) Upsert(score *assessment.PriorityScore) {
	if score == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[score.ThreatID]; exists {
		q.removeLocked(score.ThreatID)
	}

	idx := sort.Search(len(q.ordered), func(i int) bool {
		return q.ordered[i].OverallScore < score.OverallScore
	})
	q.ordered = append(q.ordered, nil)
	copy(q.ordered[idx+1:], q.ordered[idx:])
	q.ordered[idx] = score
	q.byID[score.ThreatID] = score

	if len(q.ordered) > q.capacity {
		lowest := q.ordered[len(q.ordered)-1]
		q.removeLocked(lowest.ThreatID)
	}
}

// removeLocked drops the entry for id from both structures. Callers hold mu.
func (q *RankedQueue) removeLocked(id string) {
	delete(q.byID, id)
	for i, s := range q.ordered {
		if s.ThreatID == id {
			q.ordered = append(q.ordered[:i], q.ordered[i+1:]...)
			return
		}
	}
}

// Get returns the score for a threat id.
func (q *RankedQueue) Get(id string) (*assessment.PriorityScore, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s, ok := q.byID[id]
	return s, ok
}

// Top returns the n highest-ranked scores.
func (q *RankedQueue) Top(n int) []*assessment.PriorityScore {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if n > len(q.ordered) {
		n = len(q.ordered)
	}
	out := make([]*assessment.PriorityScore, n)
	copy(out, q.ordered[:n])
	return out
}

// ByLevel returns all entries at the given priority level, highest first.
func (q *RankedQueue) ByLevel(level assessment.PriorityLevel) []*assessment.PriorityScore {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []*assessment.PriorityScore
	for _, s := range q.ordered {
		if s.Level == level {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the current entry count.
func (q *RankedQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.ordered)
}
