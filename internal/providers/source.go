// Package providers adapts raw storage and external feeds into the series
// interfaces the pipeline consumes, with rate limiting and circuit breaking
// on every fetch path.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

// SourceConfig tunes the guarded indicator source.
type SourceConfig struct {
	MaxLookbackDays    int     `yaml:"max_lookback_days"`    // Default: 7 (weekend/holiday tolerance)
	RequestsPerSecond  float64 `yaml:"requests_per_second"`  // Default: 50
	Burst              int     `yaml:"burst"`                // Default: 10
	BreakerMaxFailures uint32  `yaml:"breaker_max_failures"` // Default: 5 consecutive
	BreakerOpenSecs    int     `yaml:"breaker_open_secs"`    // Default: 30
}

// DefaultSourceConfig returns the production source configuration.
func DefaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		MaxLookbackDays:    7,
		RequestsPerSecond:  50,
		Burst:              10,
		BreakerMaxFailures: 5,
		BreakerOpenSecs:    30,
	}
}

// IndicatorSource serves indicator values from the observation store behind a
// rate limiter and a circuit breaker. It satisfies indexer.SeriesSource:
// point lookups search backward over the configured lookback window so that
// weekends and holidays read as the last trading day, not as gaps.
type IndicatorSource struct {
	repo    persistence.IndicatorRepo
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	config  *SourceConfig
}

// NewIndicatorSource creates a guarded indicator source. A nil config selects
// defaults.
func NewIndicatorSource(repo persistence.IndicatorRepo, config *SourceConfig) *IndicatorSource {
	if config == nil {
		config = DefaultSourceConfig()
	}

	settings := gobreaker.Settings{
		Name:    "indicator_source",
		Timeout: time.Duration(config.BreakerOpenSecs) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &IndicatorSource{
		repo:    repo,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		config:  config,
	}
}

// ValueOnOrBefore returns the nearest observation at or before asOf within
// the lookback window. ok=false means the series has no observation there.
func (s *IndicatorSource) ValueOnOrBefore(ctx context.Context, indicatorID string, asOf time.Time) (float64, time.Time, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.repo.ValueOnOrBefore(ctx, indicatorID, asOf, s.config.MaxLookbackDays)
	})
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("fetch indicator %s: %w", indicatorID, err)
	}

	obs := result.(*domain.IndicatorObservation)
	if obs == nil {
		return 0, time.Time{}, false, nil
	}
	return obs.Value, obs.Date, true, nil
}

// History returns observed values in [from, to) in date order.
func (s *IndicatorSource) History(ctx context.Context, indicatorID string, from, to time.Time) ([]float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.repo.History(ctx, indicatorID, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch history %s: %w", indicatorID, err)
	}
	return result.([]float64), nil
}
