package opportunity

import (
	"github.com/sawpanic/marketpulse/internal/domain"
)

// Expectancy bases, ordered by data availability.
const (
	BasisTheme          = "theme"
	BasisThemeBlended   = "theme_blended"
	BasisDirectionPrior = "direction_prior"
)

const (
	themeDirectMin  = 20 // theme sample usable on its own
	themeBlendMin   = 5  // below this the theme sample is ignored
	priorMin        = 20 // direction-level prior usable on its own
	shrinkagePseudo = 20.0
)

// ReturnStats summarizes historical forward returns for one grouping.
type ReturnStats struct {
	Mean  float64 `json:"mean" db:"mean"`
	Worst float64 `json:"worst" db:"worst"`
	N     int     `json:"n" db:"n"`
}

// ResolveExpectancy picks the expectancy basis by data availability:
// a theme sample of >=20 is used directly; 5-19 is blended with the
// direction-level prior using shrinkage weight w = n/(n+20); under 5 the
// prior stands alone when it has >=20 samples; otherwise expectancy is
// unavailable and the caller gets nil.
func ResolveExpectancy(theme, prior ReturnStats) *domain.ExpectancyRef {
	switch {
	case theme.N >= themeDirectMin:
		return &domain.ExpectancyRef{
			Mean:       theme.Mean,
			WorstCase:  theme.Worst,
			Basis:      BasisTheme,
			SampleSize: theme.N,
			Quality:    expectancyQuality(theme.N),
		}

	case theme.N >= themeBlendMin && prior.N > 0:
		w := float64(theme.N) / (float64(theme.N) + shrinkagePseudo)
		return &domain.ExpectancyRef{
			Mean:       w*theme.Mean + (1.0-w)*prior.Mean,
			WorstCase:  w*theme.Worst + (1.0-w)*prior.Worst,
			Basis:      BasisThemeBlended,
			SampleSize: theme.N + prior.N,
			Quality:    expectancyQuality(theme.N + prior.N),
		}

	case prior.N >= priorMin:
		return &domain.ExpectancyRef{
			Mean:       prior.Mean,
			WorstCase:  prior.Worst,
			Basis:      BasisDirectionPrior,
			SampleSize: prior.N,
			Quality:    expectancyQuality(prior.N),
		}

	default:
		return nil
	}
}

func expectancyQuality(n int) domain.QualityBand {
	switch {
	case n >= 50:
		return domain.QualityRobust
	case n >= 20:
		return domain.QualityLimited
	default:
		return domain.QualityInsufficient
	}
}
