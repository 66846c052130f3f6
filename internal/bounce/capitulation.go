package bounce

import (
	"bounce-catcher/internal/indicators"
	"bounce-catcher/internal/marketdata"
)

// CapitulationConfig controls the waterfall-candle detector.
type CapitulationConfig struct {
	ATRLen       int
	VolMALen     int
	ATRMult      float64 // true range must be >= ATRMult * prior-bar ATR
	VolMult      float64 // volume must be >= VolMult * prior-bar volume MA
	LowerWickMin float64 // lower-wick ratio floor
}

// DefaultCapitulationConfig returns the standard detection thresholds.
func DefaultCapitulationConfig() CapitulationConfig {
	return CapitulationConfig{
		ATRLen:       14,
		VolMALen:     20,
		ATRMult:      3.0,
		VolMult:      2.0,
		LowerWickMin: 0.35,
	}
}

// CapitulationDetector evaluates the latest candle for the 3-condition
// waterfall signature: range expansion, volume spike, and a long lower
// wick. ATR and volume MA are computed as of the prior bar so the candle
// being evaluated never contaminates its own baseline.
type CapitulationDetector struct {
	cfg CapitulationConfig
}

// NewCapitulationDetector creates a detector.
func NewCapitulationDetector(cfg CapitulationConfig) *CapitulationDetector {
	return &CapitulationDetector{cfg: cfg}
}

// MinHistory is the minimum candle count for a meaningful evaluation.
func (d *CapitulationDetector) MinHistory() int {
	n := d.cfg.ATRLen
	if d.cfg.VolMALen > n {
		n = d.cfg.VolMALen
	}
	return n + 2
}

// Evaluate checks the last candle of the window. Metrics are always
// returned for scoring and audit, even when the event does not fire.
// Too little history yields all-zero metrics and no detection.
func (d *CapitulationDetector) Evaluate(candles []marketdata.Candle) (CapitulationMetrics, bool) {
	var m CapitulationMetrics
	if len(candles) < d.MinHistory() {
		return m, false
	}

	last := candles[len(candles)-1]
	prior := candles[:len(candles)-1]
	prevClose := prior[len(prior)-1].Close

	m.TrueRange = indicators.TrueRange(prevClose, last.High, last.Low)
	m.ATR = indicators.ATR(prior, d.cfg.ATRLen)
	m.Volume = last.Volume
	m.VolumeMA = indicators.VolumeMA(prior, d.cfg.VolMALen)
	m.WickRatio = indicators.WickRatio(last.Open, last.High, last.Low, last.Close)
	if m.ATR > 0 {
		m.RangeMult = m.TrueRange / m.ATR
	}
	if m.VolumeMA > 0 {
		m.VolumeMult = m.Volume / m.VolumeMA
	}

	rangeOK := m.ATR > 0 && m.TrueRange >= d.cfg.ATRMult*m.ATR
	volumeOK := m.VolumeMA > 0 && m.Volume >= d.cfg.VolMult*m.VolumeMA
	wickOK := m.WickRatio >= d.cfg.LowerWickMin

	return m, rangeOK && volumeOK && wickOK
}
