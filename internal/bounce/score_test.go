package bounce

import (
	"testing"
)

// TestScoreComponentCaps tests that each component saturates at its cap
func TestScoreComponentCaps(t *testing.T) {
	scorer := NewBounceScorer()
	m := CapitulationMetrics{
		TrueRange: 20, ATR: 2, // 10x range: raw 100, capped 25
		Volume: 500, VolumeMA: 100, // 5x volume: raw 50, capped 20
		WickRatio: 0.9, // raw 36, capped 20
	}
	confirmations := []Confirmation{ConfirmHigherLows, ConfirmMicroBreakout, ConfirmRSIReclaim, ConfirmFunding}

	c := scorer.Score(m, confirmations, fundingPtr(-0.01))

	if c.RangeSpike != 25 {
		t.Errorf("Range spike should cap at 25, got %v", c.RangeSpike)
	}
	if c.VolumeSpike != 20 {
		t.Errorf("Volume spike should cap at 20, got %v", c.VolumeSpike)
	}
	if c.WickRatio != 20 {
		t.Errorf("Wick component should cap at 20, got %v", c.WickRatio)
	}
	if c.Stabilization != 20 {
		t.Errorf("Stabilization should count at most 2 confirmations for 20, got %v", c.Stabilization)
	}
	if c.Funding != 15 {
		t.Errorf("Non-positive funding should earn the full 15, got %v", c.Funding)
	}
	if c.Total != 100 {
		t.Errorf("Saturated components should total exactly 100, got %v", c.Total)
	}
}

// TestScoreDegenerateBaselines tests zero-ATR and zero-volume safety
func TestScoreDegenerateBaselines(t *testing.T) {
	scorer := NewBounceScorer()
	m := CapitulationMetrics{TrueRange: 20, ATR: 0, Volume: 500, VolumeMA: 0, WickRatio: 0.5}

	c := scorer.Score(m, nil, nil)

	if c.RangeSpike != 0 || c.VolumeSpike != 0 {
		t.Errorf("Zero baselines should contribute nothing, got range=%v volume=%v", c.RangeSpike, c.VolumeSpike)
	}
	if c.WickRatio != 20 {
		t.Errorf("Wick 0.5 should score 20, got %v", c.WickRatio)
	}
	if c.Funding != 0 {
		t.Errorf("Missing funding feed should score 0, got %v", c.Funding)
	}
}

// TestScorePositiveFunding tests that positive funding earns nothing
func TestScorePositiveFunding(t *testing.T) {
	scorer := NewBounceScorer()
	c := scorer.Score(CapitulationMetrics{}, nil, fundingPtr(0.0005))
	if c.Funding != 0 {
		t.Errorf("Positive funding should not earn the component, got %v", c.Funding)
	}

	c = scorer.Score(CapitulationMetrics{}, nil, fundingPtr(0))
	if c.Funding != 15 {
		t.Errorf("Exactly-zero funding should earn the component, got %v", c.Funding)
	}
}

// TestConfluenceBonus tests the structure bonus threshold and cap
func TestConfluenceBonus(t *testing.T) {
	scorer := NewBounceScorer()
	base := ScoreComponents{Total: 60}

	// Below the 45 floor: no bonus
	if c := scorer.ApplyConfluenceBonus(base, 44); c.Total != 60 || c.ConfluenceBonus != 0 {
		t.Errorf("Confluence below 45 should add nothing, got %+v", c)
	}

	// At 50: bonus is 5
	if c := scorer.ApplyConfluenceBonus(base, 50); c.ConfluenceBonus != 5 || c.Total != 65 {
		t.Errorf("Confluence 50 should add 5, got %+v", c)
	}

	// Bonus caps at 10
	if c := scorer.ApplyConfluenceBonus(base, 100); c.ConfluenceBonus != 10 || c.Total != 70 {
		t.Errorf("Bonus should cap at 10, got %+v", c)
	}

	// Total stays clamped at 100
	high := ScoreComponents{Total: 95}
	if c := scorer.ApplyConfluenceBonus(high, 100); c.Total != 100 {
		t.Errorf("Total should clamp at 100, got %v", c.Total)
	}
}
