package calibration

import (
	"math"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// logLossClip bounds probabilities away from 0 and 1 so log terms stay finite.
const logLossClip = 1e-6

// diagnosticsFromBins derives the three aggregate measures from binned
// counts. Each populated bin contributes its nominal midpoint probability
// (bin range midpoint / 100) versus the observed proportion, weighted by its
// sample count.
func diagnosticsFromBins(bins []domain.DecileBin, total int) (brier, ece, logLoss float64) {
	n := float64(total)

	for _, bin := range bins {
		if bin.Total == 0 {
			continue
		}
		w := float64(bin.Total) / n
		nominal := float64(bin.Lo+bin.Hi) / 2.0 / 100.0
		observed := float64(bin.Correct) / float64(bin.Total)

		diff := nominal - observed
		brier += w * diff * diff
		ece += w * math.Abs(diff)

		p := clip(nominal)
		logLoss += -w * (observed*math.Log(p) + (1.0-observed)*math.Log(1.0-p))
	}

	return brier, ece, logLoss
}

func clip(p float64) float64 {
	if p < logLossClip {
		return logLossClip
	}
	if p > 1.0-logLossClip {
		return 1.0 - logLossClip
	}
	return p
}
