package calibration

import (
	"math"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// wilsonZ is the normal quantile for 95% two-sided coverage.
const wilsonZ = 1.96

// Wilson computes the Wilson score interval for correct successes out of
// total trials, clamped to [0,1]. The zero-sample interval is (0,0,0).
// Unlike the naive normal interval, Wilson never collapses to a point for
// n >= 1, even at p = 0 or p = 1.
func Wilson(correct, total int) domain.WilsonInterval {
	if total == 0 {
		return domain.WilsonInterval{}
	}

	n := float64(total)
	p := float64(correct) / n
	z2 := wilsonZ * wilsonZ

	denom := 1.0 + z2/n
	center := (p + z2/(2.0*n)) / denom
	spread := wilsonZ * math.Sqrt(p*(1.0-p)/n+z2/(4.0*n*n)) / denom

	return domain.WilsonInterval{
		Lower: clamp01(center - spread),
		Point: p,
		Upper: clamp01(center + spread),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
