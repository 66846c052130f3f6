package bounce

// Component caps of the bounce score.
const (
	rangeSpikeCap    = 25.0
	volumeSpikeCap   = 20.0
	wickRatioCap     = 20.0
	stabilizationCap = 20.0
	fundingCap       = 15.0
)

// BounceScorer converts capitulation metrics, stabilization
// confirmations, and the funding reading into a 0-100 score with a
// per-component breakdown for audit.
type BounceScorer struct{}

// NewBounceScorer creates a scorer.
func NewBounceScorer() *BounceScorer {
	return &BounceScorer{}
}

// Score computes the capped component sum. funding is nil when the feed
// has no reading; the funding component is all-or-nothing for funding at
// or below zero.
func (s *BounceScorer) Score(m CapitulationMetrics, confirmations []Confirmation, funding *float64) ScoreComponents {
	var c ScoreComponents

	if m.ATR > 0 {
		c.RangeSpike = capAt(m.TrueRange/m.ATR*10, rangeSpikeCap)
	}
	if m.VolumeMA > 0 {
		c.VolumeSpike = capAt(m.Volume/m.VolumeMA*10, volumeSpikeCap)
	}
	c.WickRatio = capAt(m.WickRatio*40, wickRatioCap)

	confirmed := len(confirmations)
	if confirmed > 2 {
		confirmed = 2
	}
	c.Stabilization = capAt(float64(confirmed)*10, stabilizationCap)

	if funding != nil && *funding <= 0 {
		c.Funding = fundingCap
	}

	c.Total = c.RangeSpike + c.VolumeSpike + c.WickRatio + c.Stabilization + c.Funding
	if c.Total > 100 {
		c.Total = 100
	}
	if c.Total < 0 {
		c.Total = 0
	}
	return c
}

// ApplyConfluenceBonus adds the structure-confluence bonus: confluence
// at or above 45 earns min(confluence*0.1, 10), total still capped at 100.
func (s *BounceScorer) ApplyConfluenceBonus(c ScoreComponents, confluence float64) ScoreComponents {
	if confluence < 45 {
		return c
	}
	c.ConfluenceBonus = capAt(confluence*0.1, 10)
	c.Total += c.ConfluenceBonus
	if c.Total > 100 {
		c.Total = 100
	}
	return c
}

func capAt(v, cap float64) float64 {
	if v < 0 {
		return 0
	}
	if v > cap {
		return cap
	}
	return v
}
