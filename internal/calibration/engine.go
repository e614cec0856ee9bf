// Package calibration maintains decile-binned historical accuracy statistics
// for real-valued prediction scores, with Wilson confidence intervals,
// adaptive bin pooling and aggregate quality diagnostics.
package calibration

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/domain"
)

// Outcome is one historical (predicted score, was it correct) pair.
type Outcome struct {
	Score   float64 `json:"score" db:"score"`
	Correct bool    `json:"correct" db:"correct"`
}

// Config holds the sample-size policy for calibration statistics.
type Config struct {
	PoolTarget     int `yaml:"pool_target"`     // Default: 50 (pooled samples per decile lookup)
	RobustMin      int `yaml:"robust_min"`      // Default: 50
	LimitedMin     int `yaml:"limited_min"`     // Default: 20
	DiagnosticsMin int `yaml:"diagnostics_min"` // Default: 30
}

// DefaultConfig returns the production calibration policy.
func DefaultConfig() *Config {
	return &Config{
		PoolTarget:     50,
		RobustMin:      50,
		LimitedMin:     20,
		DiagnosticsMin: 30,
	}
}

// Engine builds calibration snapshots and answers pooled decile lookups.
type Engine struct {
	config *Config
}

// NewEngine creates a calibration engine. A nil config selects defaults.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// BuildSnapshot bins outcomes into ten contiguous deciles over [0,100] and
// attaches per-bin Wilson intervals and aggregate diagnostics.
func (e *Engine) BuildSnapshot(metric, horizon string, outcomes []Outcome) *domain.CalibrationSnapshot {
	bins := make([]domain.DecileBin, 10)
	for i := range bins {
		bins[i].Lo = i * 10
		bins[i].Hi = (i + 1) * 10
	}

	for _, out := range outcomes {
		i := binIndex(out.Score)
		bins[i].Total++
		if out.Correct {
			bins[i].Correct++
		}
	}

	total := 0
	for i := range bins {
		bins[i].Interval = Wilson(bins[i].Correct, bins[i].Total)
		total += bins[i].Total
	}

	snapshot := &domain.CalibrationSnapshot{
		Metric:      metric,
		Horizon:     horizon,
		Bins:        bins,
		Total:       total,
		Quality:     e.QualityBand(total),
		Diagnostics: e.Diagnostics(bins, total),
	}

	log.Debug().
		Str("metric", metric).
		Str("horizon", horizon).
		Int("total", total).
		Str("quality", string(snapshot.Quality)).
		Msg("calibration snapshot built")

	return snapshot
}

// QualityBand grades a sample count.
func (e *Engine) QualityBand(samples int) domain.QualityBand {
	switch {
	case samples >= e.RobustMin():
		return domain.QualityRobust
	case samples >= e.config.LimitedMin:
		return domain.QualityLimited
	default:
		return domain.QualityInsufficient
	}
}

// RobustMin exposes the robust threshold for callers grading their own pools.
func (e *Engine) RobustMin() int { return e.config.RobustMin }

// PooledBin is the result of adaptive decile pooling around a target bin.
type PooledBin struct {
	Lo       int                   `json:"lo"`
	Hi       int                   `json:"hi"`
	Correct  int                   `json:"correct"`
	Total    int                   `json:"total"`
	Interval domain.WilsonInterval `json:"interval"`
	Quality  domain.QualityBand    `json:"quality"`
}

// Pool merges adjacent bins outward from the decile containing score until
// the pooled sample size reaches the configured target or bins run out.
// Bins are taken in nearest-distance order with ties broken toward the lower
// bin, so the merged range is always contiguous.
func (e *Engine) Pool(snapshot *domain.CalibrationSnapshot, score float64) PooledBin {
	target := binIndex(score)

	lo, hi := target, target
	correct := snapshot.Bins[target].Correct
	total := snapshot.Bins[target].Total

	for total < e.config.PoolTarget && (lo > 0 || hi < len(snapshot.Bins)-1) {
		if lo > 0 {
			lo--
			correct += snapshot.Bins[lo].Correct
			total += snapshot.Bins[lo].Total
			if total >= e.config.PoolTarget {
				break
			}
		}
		if hi < len(snapshot.Bins)-1 {
			hi++
			correct += snapshot.Bins[hi].Correct
			total += snapshot.Bins[hi].Total
		}
	}

	return PooledBin{
		Lo:       snapshot.Bins[lo].Lo,
		Hi:       snapshot.Bins[hi].Hi,
		Correct:  correct,
		Total:    total,
		Interval: Wilson(correct, total),
		Quality:  e.QualityBand(total),
	}
}

// Ref builds the calibration reference attached to an opportunity candidate:
// the pooled Wilson interval for the conviction's decile. ProbCorrect is nil
// when the pool is empty.
func (e *Engine) Ref(snapshot *domain.CalibrationSnapshot, score float64) *domain.CalibrationRef {
	pooled := e.Pool(snapshot, score)

	ref := &domain.CalibrationRef{
		Interval:   pooled.Interval,
		BinLo:      pooled.Lo,
		BinHi:      pooled.Hi,
		SampleSize: pooled.Total,
		Quality:    pooled.Quality,
	}
	if pooled.Total > 0 {
		p := float64(pooled.Correct) / float64(pooled.Total)
		ref.ProbCorrect = &p
	}
	return ref
}

// Diagnostics computes Brier score, expected calibration error and log-loss
// from the binned counts. Below the sample floor all three are nil with an
// explicit reason code; callers must treat that as "cannot assess".
func (e *Engine) Diagnostics(bins []domain.DecileBin, total int) domain.Diagnostics {
	if total < e.config.DiagnosticsMin {
		return domain.Diagnostics{Reason: fmt.Sprintf("insufficient_sample_%d", total)}
	}
	brier, ece, logLoss := diagnosticsFromBins(bins, total)
	return domain.Diagnostics{Brier: &brier, ECE: &ece, LogLoss: &logLoss}
}

// binIndex maps a 0-100 score onto its decile, with 100 folding into the top bin.
func binIndex(score float64) int {
	if score < 0 {
		return 0
	}
	i := int(score / 10.0)
	if i > 9 {
		return 9
	}
	return i
}
