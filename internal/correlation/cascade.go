package correlation

import (
	"math"
	"sort"

	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/threat"
)

// detectCascades runs a time-ordered greedy walk over the events: a running
// sequence is extended while the gap to the next event stays under maxGap
// hours and either severity is non-decreasing or the type matches the
// previous event. Sequences shorter than minLength are discarded.
func detectCascades(events []*threat.Event, maxGapHours float64, minLength int) []*assessment.CascadeSequence {
	if len(events) < minLength {
		return nil
	}

	ordered := make([]*threat.Event, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].DetectedAt.Equal(ordered[j].DetectedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].DetectedAt.Before(ordered[j].DetectedAt)
	})

	var sequences []*assessment.CascadeSequence
	current := []*threat.Event{ordered[0]}
	maxGap := 0.0

	flush := func() {
		if len(current) >= minLength {
			ids := make([]string, len(current))
			for i, ev := range current {
				ids[i] = ev.ID
			}
			sequences = append(sequences, &assessment.CascadeSequence{
				ThreatIDs:   ids,
				StartAt:     current[0].DetectedAt,
				EndAt:       current[len(current)-1].DetectedAt,
				MaxGapHours: maxGap,
			})
		}
	}

	for i := 1; i < len(ordered); i++ {
		prev := current[len(current)-1]
		next := ordered[i]
		gap := math.Abs(next.DetectedAt.Sub(prev.DetectedAt).Hours())

		if gap < maxGapHours && (next.Severity.Score() >= prev.Severity.Score() || next.Type == prev.Type) {
			current = append(current, next)
			if gap > maxGap {
				maxGap = gap
			}
			continue
		}

		flush()
		current = []*threat.Event{next}
		maxGap = 0
	}
	flush()

	return sequences
}
