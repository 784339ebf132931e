// Package scoring computes raw and normalized candidate scores.
package scoring

import "math"

// Weights are the fixed multipliers of the raw score formula.
type Weights struct {
	Trophy   float64 `mapstructure:"trophy"`
	Donation float64 `mapstructure:"donation"`
	War      float64 `mapstructure:"war"`
}

// DefaultWeights match the tuning the benchmark history was built on. The
// war weight is deliberately dominant: a mercenary with the activity bonus
// outranks any trophy count.
func DefaultWeights() Weights {
	return Weights{Trophy: 1, Donation: 0.5, War: 20}
}

// RawScore is the rounded weighted sum used for ranking.
func (w Weights) RawScore(trophies, donations, warScore int) int {
	return int(math.Round(
		float64(trophies)*w.Trophy +
			float64(donations)*w.Donation +
			float64(warScore)*w.War,
	))
}

// Anchor returns the normalization denominator: the best of the blacklist
// benchmark and the current pool's top raw score, floored at 1 so division
// is always safe. Anchoring against the best-ever-seen candidate keeps a
// weak scan from inflating everyone's percentage.
func Anchor(blacklistBenchmark float64, poolTopRawScore int) float64 {
	anchor := max(blacklistBenchmark, float64(poolTopRawScore))
	return max(anchor, 1)
}

// PerfScore normalizes raw against the anchor on a 0-100 scale. The top
// live candidate scores exactly 100 whenever it is itself the anchor;
// that is intentional, not a capping bug.
func PerfScore(raw int, anchor float64) int {
	return int(math.Round(float64(raw) / anchor * 100))
}
