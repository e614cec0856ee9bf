package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketpulse/internal/domain"
)

type fakeIndicatorRepo struct {
	obs      *domain.IndicatorObservation
	history  []float64
	err      error
	lookback int
	calls    int
}

func (f *fakeIndicatorRepo) UpsertObservations(ctx context.Context, observations []domain.IndicatorObservation) error {
	return nil
}

func (f *fakeIndicatorRepo) ValueOnOrBefore(ctx context.Context, indicatorID string, asOf time.Time, maxLookbackDays int) (*domain.IndicatorObservation, error) {
	f.calls++
	f.lookback = maxLookbackDays
	return f.obs, f.err
}

func (f *fakeIndicatorRepo) History(ctx context.Context, indicatorID string, from, to time.Time) ([]float64, error) {
	f.calls++
	return f.history, f.err
}

func TestIndicatorSource_ValueOnOrBefore(t *testing.T) {
	observed := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	repo := &fakeIndicatorRepo{
		obs: &domain.IndicatorObservation{IndicatorID: "vix", Date: observed, Value: 19.5},
	}
	source := NewIndicatorSource(repo, nil)

	value, on, ok, err := source.ValueOnOrBefore(context.Background(), "vix", observed.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 19.5, value)
	assert.Equal(t, observed, on)
	assert.Equal(t, 7, repo.lookback, "default weekend tolerance window")
}

func TestIndicatorSource_ValueOnOrBefore_Missing(t *testing.T) {
	source := NewIndicatorSource(&fakeIndicatorRepo{}, nil)

	_, _, ok, err := source.ValueOnOrBefore(context.Background(), "ghost", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndicatorSource_History(t *testing.T) {
	repo := &fakeIndicatorRepo{history: []float64{1, 2, 3}}
	source := NewIndicatorSource(repo, nil)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	values, err := source.History(context.Background(), "vix", from, from.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, values)
}

func TestIndicatorSource_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	repo := &fakeIndicatorRepo{err: errors.New("connection refused")}
	config := DefaultSourceConfig()
	config.BreakerMaxFailures = 3
	source := NewIndicatorSource(repo, config)

	for i := 0; i < 3; i++ {
		_, _, _, err := source.ValueOnOrBefore(context.Background(), "vix", time.Now())
		require.Error(t, err)
	}
	repoCalls := repo.calls

	// The breaker is now open: subsequent calls fail fast without touching
	// the repository.
	_, _, _, err := source.ValueOnOrBefore(context.Background(), "vix", time.Now())
	require.Error(t, err)
	assert.Equal(t, repoCalls, repo.calls)
}

func TestIndicatorSource_RateLimiterHonorsContext(t *testing.T) {
	config := DefaultSourceConfig()
	config.RequestsPerSecond = 0.001
	config.Burst = 1
	source := NewIndicatorSource(&fakeIndicatorRepo{history: []float64{1}}, config)

	// First call consumes the burst token.
	_, err := source.History(context.Background(), "vix", time.Now(), time.Now())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = source.History(ctx, "vix", time.Now(), time.Now())
	require.Error(t, err)
}
