package structure

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// TrendlineConfig controls the sequential RANSAC fitter.
type TrendlineConfig struct {
	ATRTolMult float64 // residual threshold = medianATR * ATRTolMult
	PctTol     float64 // fallback threshold = price * PctTol when ATR is degenerate
	MinInliers int
	MaxLines   int
	MaxTrials  int
	Seed       int64
}

// DefaultTrendlineConfig returns the standard fitter settings.
func DefaultTrendlineConfig() TrendlineConfig {
	return TrendlineConfig{
		ATRTolMult: 0.5,
		PctTol:     0.003,
		MinInliers: 3,
		MaxLines:   3,
		MaxTrials:  200,
		Seed:       42,
	}
}

// FitTrendlines extracts up to MaxLines trendlines from pivots of one
// kind (lows for support, highs for resistance) by sequential RANSAC:
// fit, peel the inliers, fit again on the remainder. The fixed seed makes
// the result bit-identical across runs for an identical pivot set.
// Results are sorted by inlier count descending.
func FitTrendlines(pivots []Pivot, side Side, medianATR float64, cfg TrendlineConfig) []FittedLine {
	if len(pivots) < cfg.MinInliers || cfg.MaxLines <= 0 {
		return nil
	}

	// Work on a sorted copy so trial sampling is order-independent.
	pts := make([]Pivot, len(pivots))
	copy(pts, pivots)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Timestamp.Equal(pts[j].Timestamp) {
			return pts[i].Price < pts[j].Price
		}
		return pts[i].Timestamp.Before(pts[j].Timestamp)
	})

	t0 := float64(pts[0].Timestamp.Unix())
	span := float64(pts[len(pts)-1].Timestamp.Unix()) - t0
	if span <= 0 {
		return nil
	}

	threshold := medianATR * cfg.ATRTolMult
	if threshold <= 0 {
		threshold = pts[0].Price * cfg.PctTol
	}
	if threshold <= 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	remaining := pts
	var lines []FittedLine

	for len(lines) < cfg.MaxLines {
		slope, intercept, inliers, ok := ransacFit(remaining, t0, span, threshold, cfg, rng)
		if !ok || len(inliers) < cfg.MinInliers {
			break
		}

		line := FittedLine{
			// Convert normalized-time coefficients back to unix seconds.
			Slope:             slope / span,
			Intercept:         intercept - slope*t0/span,
			Side:              side,
			InlierCount:       len(inliers),
			Inliers:           inliers,
			StartAt:           inliers[0].Timestamp,
			EndAt:             inliers[len(inliers)-1].Timestamp,
			ResidualThreshold: threshold,
		}
		lines = append(lines, line)

		remaining = without(remaining, inliers)
		if len(remaining) < cfg.MinInliers {
			break
		}
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].InlierCount > lines[j].InlierCount
	})
	return lines
}

// ransacFit runs one RANSAC regression over the candidate points with
// timestamps normalized to [0,1]. Returns normalized-time coefficients.
func ransacFit(pts []Pivot, t0, span, threshold float64, cfg TrendlineConfig, rng *rand.Rand) (slope, intercept float64, inliers []Pivot, ok bool) {
	if len(pts) < 2 {
		return 0, 0, nil, false
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = (float64(p.Timestamp.Unix()) - t0) / span
		ys[i] = p.Price
	}

	bestCount := 0
	var bestSlope, bestIntercept float64
	for trial := 0; trial < cfg.MaxTrials; trial++ {
		i := rng.Intn(len(pts))
		j := rng.Intn(len(pts))
		if i == j || xs[i] == xs[j] {
			continue
		}
		a := (ys[j] - ys[i]) / (xs[j] - xs[i])
		b := ys[i] - a*xs[i]

		count := 0
		for k := range pts {
			if math.Abs(ys[k]-(a*xs[k]+b)) <= threshold {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			bestSlope = a
			bestIntercept = b
		}
	}
	if bestCount < 2 {
		return 0, 0, nil, false
	}

	// Refine with a least-squares fit over the consensus set, then take
	// the final inlier set against the refined line.
	var consensus []int
	for k := range pts {
		if math.Abs(ys[k]-(bestSlope*xs[k]+bestIntercept)) <= threshold {
			consensus = append(consensus, k)
		}
	}
	a, b, fitOK := leastSquares(xs, ys, consensus)
	if !fitOK {
		a, b = bestSlope, bestIntercept
	}

	for k := range pts {
		if math.Abs(ys[k]-(a*xs[k]+b)) <= threshold {
			inliers = append(inliers, pts[k])
		}
	}
	if len(inliers) < 2 {
		return 0, 0, nil, false
	}
	return a, b, inliers, true
}

// leastSquares fits y = a*x + b over the selected indices.
func leastSquares(xs, ys []float64, idx []int) (a, b float64, ok bool) {
	n := float64(len(idx))
	if n < 2 {
		return 0, 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for _, i := range idx {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}
	a = (n*sumXY - sumX*sumY) / denom
	b = (sumY - a*sumX) / n
	return a, b, true
}

// without returns the points not present in the removed set, keyed by
// (timestamp, price, source).
func without(pts, removed []Pivot) []Pivot {
	type key struct {
		ts     time.Time
		price  float64
		source PivotSource
	}
	drop := make(map[key]bool, len(removed))
	for _, p := range removed {
		drop[key{p.Timestamp, p.Price, p.Source}] = true
	}
	var out []Pivot
	for _, p := range pts {
		if !drop[key{p.Timestamp, p.Price, p.Source}] {
			out = append(out, p)
		}
	}
	return out
}
