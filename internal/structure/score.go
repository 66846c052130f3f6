package structure

import (
	"math"
	"time"
)

// ScoreWeights are the component weights of the 0-100 structure score.
type ScoreWeights struct {
	Touches    float64
	Recency    float64
	Confluence float64
	Stability  float64
}

// DefaultScoreWeights returns the standard weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Touches:    0.40,
		Recency:    0.35,
		Confluence: 0.15,
		Stability:  0.10,
	}
}

const (
	confluenceNearPct   = 0.005 // within 0.5% counts as near-confluence
	flipConfluenceBoost = 30    // flip levels held both roles historically
)

// ScoreStructures assigns a 0-100 score to every line and level in
// place. Confluence is evaluated against all other features at now.
func ScoreStructures(lines []FittedLine, levels []Level, now time.Time, weights ScoreWeights) {
	for i := range lines {
		lines[i].Score = scoreLine(lines[i], lines, levels, now, weights)
	}
	for i := range levels {
		levels[i].Score = scoreLevel(levels[i], i, lines, levels, now, weights)
	}
}

func scoreLine(line FittedLine, lines []FittedLine, levels []Level, now time.Time, w ScoreWeights) float64 {
	touches := clamp100(min(float64(line.InlierCount)/10, 1) * 100)
	recency := 100 / (1 + daysSince(line.EndAt, now))
	stability := clamp100(min(float64(line.InlierCount)/8, 1) * 100)

	price := line.PriceAt(now)
	confluence := confluenceAgainst(price, levels, -1)

	total := touches*w.Touches + recency*w.Recency + confluence*w.Confluence + stability*w.Stability
	return clamp100(total)
}

func scoreLevel(level Level, idx int, lines []FittedLine, levels []Level, now time.Time, w ScoreWeights) float64 {
	touches := clamp100(min(float64(level.TouchCount)/10, 1) * 100)
	recency := 100 / (1 + daysSince(level.LastTested, now))

	widthPct := 0.0
	if level.Centroid > 0 {
		widthPct = (level.Top - level.Bottom) / level.Centroid
	}
	stability := 100 - widthPct*5000
	if stability < 0 {
		stability = 0
	}

	confluence := confluenceAgainst(level.Centroid, levels, idx)
	for _, line := range lines {
		lp := line.PriceAt(now)
		if level.Contains(lp) {
			confluence = max(confluence, 100)
		} else if level.Centroid > 0 && math.Abs(lp-level.Centroid)/level.Centroid <= confluenceNearPct {
			confluence = max(confluence, 60)
		}
	}
	if level.Role == RoleFlip {
		confluence = clamp100(confluence + flipConfluenceBoost)
	}

	total := touches*w.Touches + recency*w.Recency + confluence*w.Confluence + stability*w.Stability
	return clamp100(total)
}

// confluenceAgainst scores how strongly a price agrees with the level
// set, skipping the level's own index.
func confluenceAgainst(price float64, levels []Level, skip int) float64 {
	best := 0.0
	for i, lv := range levels {
		if i == skip {
			continue
		}
		if lv.Contains(price) {
			return 100
		}
		if lv.Centroid > 0 && math.Abs(price-lv.Centroid)/lv.Centroid <= confluenceNearPct {
			best = max(best, 60)
		}
	}
	return best
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
