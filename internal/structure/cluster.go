package structure

import (
	"math"
	"sort"
	"time"
)

// ClusterConfig controls horizontal level clustering.
type ClusterConfig struct {
	EpsATRMult        float64 // cluster radius = medianATR * EpsATRMult
	MinSamples        int     // core-point neighborhood size
	MinClusterTouches int     // clusters smaller than this are discarded
	FlipOverlapTol    float64 // flip merge distance = medianATR * FlipOverlapTol
}

// DefaultClusterConfig returns the standard clustering settings.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		EpsATRMult:        0.5,
		MinSamples:        3,
		MinClusterTouches: 3,
		FlipOverlapTol:    0.6,
	}
}

// minEps avoids zero-ATR degeneracy collapsing every point into noise.
const minEps = 1e-9

// ClusterLevels groups pivot highs and lows into horizontal zones by 1-D
// density clustering (each population independently), then merges
// overlapping support/resistance pairs into flip levels. Deterministic:
// identical inputs and eps yield identical clusters.
func ClusterLevels(highs, lows []Pivot, medianATR float64, cfg ClusterConfig) []Level {
	eps := medianATR * cfg.EpsATRMult
	if eps < minEps {
		eps = minEps
	}

	supports := clusterOneSide(lows, eps, cfg, RoleSupport)
	resistances := clusterOneSide(highs, eps, cfg, RoleResistance)

	return mergeFlips(supports, resistances, medianATR*cfg.FlipOverlapTol)
}

// cluster carries the member pivots alongside the finished Level so the
// flip merge can recombine them.
type cluster struct {
	level  Level
	pivots []Pivot
}

// clusterOneSide runs DBSCAN over one pivot population's prices.
func clusterOneSide(pivots []Pivot, eps float64, cfg ClusterConfig, role LevelRole) []cluster {
	if len(pivots) < cfg.MinSamples {
		return nil
	}

	pts := make([]Pivot, len(pivots))
	copy(pts, pivots)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Price < pts[j].Price })

	n := len(pts)
	// neighborCount[i] = points within eps of pts[i], inclusive.
	neighborCount := make([]int, n)
	lo, hi := 0, 0
	for i := 0; i < n; i++ {
		for lo < n && pts[i].Price-pts[lo].Price > eps {
			lo++
		}
		if hi < i {
			hi = i
		}
		for hi+1 < n && pts[hi+1].Price-pts[i].Price <= eps {
			hi++
		}
		neighborCount[i] = hi - lo + 1
	}

	// Expand clusters from core points; border points join the cluster of
	// a reachable core, isolated points stay noise and are dropped.
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != -1 || neighborCount[i] < cfg.MinSamples {
			continue
		}
		// BFS over density-reachable points.
		queue := []int{i}
		labels[i] = clusterID
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if neighborCount[cur] < cfg.MinSamples {
				continue // border point, do not expand from it
			}
			for j := cur - 1; j >= 0 && pts[cur].Price-pts[j].Price <= eps; j-- {
				if labels[j] == -1 {
					labels[j] = clusterID
					queue = append(queue, j)
				}
			}
			for j := cur + 1; j < n && pts[j].Price-pts[cur].Price <= eps; j++ {
				if labels[j] == -1 {
					labels[j] = clusterID
					queue = append(queue, j)
				}
			}
		}
		clusterID++
	}

	members := make(map[int][]Pivot)
	for i, label := range labels {
		if label >= 0 {
			members[label] = append(members[label], pts[i])
		}
	}

	var out []cluster
	for id := 0; id < clusterID; id++ {
		group := members[id]
		if len(group) < cfg.MinClusterTouches {
			continue
		}
		out = append(out, cluster{level: buildLevel(group, role), pivots: group})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].level.Centroid < out[j].level.Centroid })
	return out
}

// buildLevel derives zone geometry and touch history from member pivots.
func buildLevel(pivots []Pivot, role LevelRole) Level {
	sum := 0.0
	top := pivots[0].Price
	bottom := pivots[0].Price
	first := pivots[0].Timestamp
	last := pivots[0].Timestamp
	for _, p := range pivots {
		sum += p.Price
		if p.Price > top {
			top = p.Price
		}
		if p.Price < bottom {
			bottom = p.Price
		}
		if p.Timestamp.Before(first) {
			first = p.Timestamp
		}
		if p.Timestamp.After(last) {
			last = p.Timestamp
		}
	}
	return Level{
		Centroid:    sum / float64(len(pivots)),
		Top:         top,
		Bottom:      bottom,
		Role:        role,
		TouchCount:  len(pivots),
		FirstTested: first,
		LastTested:  last,
	}
}

// mergeFlips pairs each support zone with its nearest unused resistance
// zone; centroids within tol merge into one flip level combining both
// pivot sets. Unmerged zones keep their original role.
func mergeFlips(supports, resistances []cluster, tol float64) []Level {
	usedRes := make([]bool, len(resistances))
	var out []Level

	for _, sup := range supports {
		bestIdx := -1
		bestDist := 0.0
		for i, res := range resistances {
			if usedRes[i] {
				continue
			}
			dist := math.Abs(sup.level.Centroid - res.level.Centroid)
			if bestIdx == -1 || dist < bestDist {
				bestIdx = i
				bestDist = dist
			}
		}
		if bestIdx >= 0 && tol > 0 && bestDist <= tol {
			usedRes[bestIdx] = true
			merged := append(append([]Pivot{}, sup.pivots...), resistances[bestIdx].pivots...)
			flip := buildLevel(merged, RoleFlip)
			out = append(out, flip)
			continue
		}
		out = append(out, sup.level)
	}
	for i, res := range resistances {
		if !usedRes[i] {
			out = append(out, res.level)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Centroid == out[j].Centroid {
			return out[i].FirstTested.Before(out[j].FirstTested)
		}
		return out[i].Centroid < out[j].Centroid
	})
	return out
}

// daysSince measures age in days, saturating for zero times.
func daysSince(t, now time.Time) float64 {
	if t.IsZero() {
		return 1e6
	}
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}
