package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileRank_MidpointTies(t *testing.T) {
	history := []float64{1, 2, 2, 3, 4}

	// Two below, two equal: (2 + 2/2) / 5 * 100 = 60
	assert.InDelta(t, 60.0, PercentileRank(history, 2), 1e-9)

	// All below
	assert.InDelta(t, 100.0, PercentileRank(history, 10), 1e-9)

	// All above
	assert.InDelta(t, 0.0, PercentileRank(history, 0), 1e-9)
}

func TestPercentileRank_SingleElementEqualsProbe(t *testing.T) {
	assert.InDelta(t, 50.0, PercentileRank([]float64{7.5}, 7.5), 1e-9)
}

func TestPercentileRank_Monotonic(t *testing.T) {
	history := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5}

	prev := -1.0
	for v := -2.0; v <= 12.0; v += 0.25 {
		p := PercentileRank(history, v)
		assert.GreaterOrEqual(t, p, prev, "percentile must be monotonic in the probe value at %v", v)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 100.0)
		prev = p
	}
}

func TestPercentileRank_EmptyHistory(t *testing.T) {
	assert.InDelta(t, 50.0, PercentileRank(nil, 1.0), 1e-9)
}
