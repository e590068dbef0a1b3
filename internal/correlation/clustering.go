package correlation

import (
	"fmt"
	"math"
	"sort"

	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
	"github.com/skywatch/backend/pkg/threat"
)

// unionFind is a plain disjoint-set over event indexes.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// buildClusters groups events connected by retained correlations. Events are
// pre-sorted by id by the engine, so identical inputs yield identical
// membership and cluster ids.
func buildClusters(events []*threat.Event, correlations []*assessment.ThreatCorrelation) []*assessment.ThreatCluster {
	if len(events) == 0 {
		return nil
	}

	index := make(map[string]int, len(events))
	for i, ev := range events {
		index[ev.ID] = i
	}

	uf := newUnionFind(len(events))
	// Sum and count of pairwise scores per root, folded after union for the
	// stability score.
	pairScores := make(map[string][]float64)
	for _, c := range correlations {
		i, okI := index[c.Threat1ID]
		j, okJ := index[c.Threat2ID]
		if !okI || !okJ {
			continue
		}
		uf.union(i, j)
		key := c.Threat1ID + "|" + c.Threat2ID
		pairScores[key] = append(pairScores[key], c.Score)
	}

	members := make(map[int][]int)
	for i := range events {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}

	roots := make([]int, 0, len(members))
	for root, idxs := range members {
		if len(idxs) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	clusters := make([]*assessment.ThreatCluster, 0, len(roots))
	for n, root := range roots {
		idxs := members[root]
		ids := make([]string, 0, len(idxs))
		for _, i := range idxs {
			ids = append(ids, events[i].ID)
		}
		sort.Strings(ids)

		cluster := &assessment.ThreatCluster{
			ClusterID:           fmt.Sprintf("cluster-%d", n+1),
			ThreatIDs:           ids,
			DominantType:        dominantType(events, idxs),
			CompoundRiskScore:   compoundRisk(events, idxs),
			AmplificationFactor: amplification(len(idxs)),
			StabilityScore:      stability(ids, pairScores),
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// compoundRisk is the root-mean-square of member severities scaled by a
// synergy factor growing logarithmically with cluster size.
func compoundRisk(events []*threat.Event, idxs []int) float64 {
	var sq float64
	for _, i := range idxs {
		s := events[i].Severity.Score()
		sq += s * s
	}
	rms := math.Sqrt(sq / float64(len(idxs)))
	synergy := 1 + 0.15*math.Log(float64(len(idxs)))
	return common.Clamp01(rms * synergy)
}

// amplification grows logarithmically with cluster size, capped at 2x.
func amplification(size int) float64 {
	return math.Min(2, 1+0.25*math.Log(float64(size)))
}

func dominantType(events []*threat.Event, idxs []int) string {
	counts := make(map[threat.Type]int)
	for _, i := range idxs {
		counts[events[i].Type]++
	}
	var best threat.Type
	bestCount := -1
	for _, t := range threat.AllTypes {
		if counts[t] > bestCount {
			best = t
			bestCount = counts[t]
		}
	}
	return string(best)
}

// stability is the mean retained pairwise score among members; singleton
// pairs default to a neutral 0.5.
func stability(ids []string, pairScores map[string][]float64) float64 {
	var sum float64
	var n int
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := assessment.NormalizePair(ids[i], ids[j])
			for _, s := range pairScores[a+"|"+b] {
				sum += s
				n++
			}
		}
	}
	if n == 0 {
		return 0.5
	}
	return common.Clamp01(sum / float64(n))
}

// buildHotspots runs geography-only density clustering: events within the
// fixed radius of each other join the same hotspot, independent of
// correlation scores. Hotspots need at least two members.
func buildHotspots(events []*threat.Event, radiusKm float64) []*assessment.Hotspot {
	located := make([]int, 0, len(events))
	for i, ev := range events {
		if ev.Coordinates != nil {
			located = append(located, i)
		}
	}
	if len(located) < 2 {
		return nil
	}

	uf := newUnionFind(len(events))
	for a := 0; a < len(located); a++ {
		for b := a + 1; b < len(located); b++ {
			i, j := located[a], located[b]
			if Haversine(*events[i].Coordinates, *events[j].Coordinates) <= radiusKm {
				uf.union(i, j)
			}
		}
	}

	members := make(map[int][]int)
	for _, i := range located {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}

	roots := make([]int, 0, len(members))
	for root, idxs := range members {
		if len(idxs) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	hotspots := make([]*assessment.Hotspot, 0, len(roots))
	for _, root := range roots {
		idxs := members[root]

		var sumLat, sumLng, sumSev float64
		ids := make([]string, 0, len(idxs))
		for _, i := range idxs {
			sumLat += events[i].Coordinates.Lat
			sumLng += events[i].Coordinates.Lng
			sumSev += events[i].Severity.Score()
			ids = append(ids, events[i].ID)
		}
		sort.Strings(ids)

		center := threat.Coordinates{
			Lat: sumLat / float64(len(idxs)),
			Lng: sumLng / float64(len(idxs)),
		}
		var radius float64
		for _, i := range idxs {
			if d := Haversine(center, *events[i].Coordinates); d > radius {
				radius = d
			}
		}

		hotspots = append(hotspots, &assessment.Hotspot{
			CenterLat:    center.Lat,
			CenterLng:    center.Lng,
			RadiusKm:     radius,
			ThreatIDs:    ids,
			MeanSeverity: sumSev / float64(len(idxs)),
		})
	}
	return hotspots
}
