package indexer

// MinHistoryPoints is the floor below which an indicator is excluded from
// aggregation rather than ranked against a meaningless distribution.
const MinHistoryPoints = 10

// PercentileRank returns the empirical percentile (0-100) of value within
// history using the midpoint-for-ties convention:
//
//	(count(below) + count(equal)/2) / count * 100
//
// A single-element history equal to the probe therefore ranks at 50.
func PercentileRank(history []float64, value float64) float64 {
	if len(history) == 0 {
		return 50.0
	}

	below := 0
	equal := 0
	for _, h := range history {
		switch {
		case h < value:
			below++
		case h == value:
			equal++
		}
	}

	return (float64(below) + float64(equal)/2.0) / float64(len(history)) * 100.0
}
