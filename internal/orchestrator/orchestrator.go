// Package orchestrator composes the pipeline components into the canonical,
// idempotent-per-date decision snapshot and drives the refresh, backfill and
// ledger-write sequence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/calibration"
	"github.com/sawpanic/marketpulse/internal/consistency"
	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/indexer"
	"github.com/sawpanic/marketpulse/internal/metrics"
	"github.com/sawpanic/marketpulse/internal/model"
	"github.com/sawpanic/marketpulse/internal/opportunity"
	"github.com/sawpanic/marketpulse/internal/persistence"
	"github.com/sawpanic/marketpulse/internal/regime"
	"github.com/sawpanic/marketpulse/internal/signal"
)

// ContractVersion tags every snapshot. A stored snapshot carrying a different
// version is never served as canonical; it forces recomputation.
const ContractVersion = "marketpulse/v1"

// DegradedNoData is recorded when not a single indicator was usable.
const DegradedNoData = "no_data"

// AnalogSource answers historical-analog hit-rate lookups. The similarity
// subsystem lives outside this module; nil rate means no analog evidence.
type AnalogSource interface {
	HitRate(ctx context.Context, themeID string, direction domain.Direction, asOf time.Time) (*float64, error)
}

// Config tunes orchestration.
type Config struct {
	Horizon             string `yaml:"horizon"`              // Default: 30d
	CalibrationMetric   string `yaml:"calibration_metric"`   // Default: conviction
	ModelKey            string `yaml:"model_key"`            // empty disables the model component
	VolatilityIndicator string `yaml:"volatility_indicator"` // indicator driving the volatility penalty

	// Direction cut points on theme strength percentile.
	BullishAt float64 `yaml:"bullish_at"` // Default: 60
	BearishAt float64 `yaml:"bearish_at"` // Default: 40

	BackfillWorkers int `yaml:"backfill_workers"` // Default: 4
}

// DefaultConfig returns the production orchestration configuration.
func DefaultConfig() *Config {
	return &Config{
		Horizon:           "30d",
		CalibrationMetric: "conviction",
		BullishAt:         60,
		BearishAt:         40,
		BackfillWorkers:   4,
	}
}

// Deps bundles the pipeline components. Models, Analogs and Metrics are
// optional; the rest are required.
type Deps struct {
	Store      persistence.Store
	Aggregator *indexer.Aggregator
	Detector   *regime.Detector
	Signals    *signal.Engine
	Calibrator *calibration.Engine
	Gate       *opportunity.GateEvaluator
	Checker    *consistency.Checker
	Conviction *opportunity.ConvictionConfig

	Models  *model.Cache
	Analogs AnalogSource
	Metrics *metrics.Registry
}

// Orchestrator drives the refresh pipeline.
type Orchestrator struct {
	deps       Deps
	config     *Config
	indicators []indexer.IndicatorSpec
}

// New creates an orchestrator. A nil config selects defaults. The indicator
// specs are needed for staleness accounting against StaleAfterDays.
func New(deps Deps, indicators []indexer.IndicatorSpec, config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Orchestrator{deps: deps, config: config, indicators: indicators}
}

// RunID derives the deterministic run identity for an as-of date. Re-running
// the same date under the same contract reuses the id, which keeps ledger
// appends idempotent.
func RunID(asOf time.Time) string {
	name := fmt.Sprintf("%s/%s", ContractVersion, domain.Day(asOf).Format("2006-01-02"))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Refresh computes and commits the canonical snapshot for asOf.
//
// The pipeline is sequential and all-or-nothing: either every store write for
// the date lands and the new snapshot replaces the old one, or the previous
// canonical snapshot stays authoritative. The fatal no-data case commits
// nothing and returns a degraded fallback snapshot instead of an error.
func (o *Orchestrator) Refresh(ctx context.Context, asOf time.Time) (*domain.DecisionSnapshot, error) {
	asOf = domain.Day(asOf)
	runID := RunID(asOf)
	timer := o.startStep("refresh")

	snapshot, ledgerRows, err := o.compute(ctx, asOf, runID)
	if err != nil {
		timer.stop("error")
		o.countRun("error")
		return nil, err
	}

	if snapshot.DegradedReason != nil {
		// Degraded fallback: nothing is committed, the prior snapshot stays
		// canonical, and the caller gets the honestly-labeled fallback.
		timer.stop("degraded")
		o.countRun("degraded")
		if o.deps.Metrics != nil {
			o.deps.Metrics.DegradedRuns.WithLabelValues(*snapshot.DegradedReason).Inc()
		}
		log.Warn().
			Str("run_id", runID).
			Time("as_of", asOf).
			Str("reason", *snapshot.DegradedReason).
			Msg("refresh degraded, previous snapshot preserved")
		return snapshot, nil
	}

	if err := o.commit(ctx, snapshot, ledgerRows); err != nil {
		timer.stop("error")
		o.countRun("error")
		return nil, err
	}

	timer.stop("success")
	o.countRun("success")
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveSnapshot(snapshot)
	}

	log.Info().
		Str("run_id", runID).
		Time("as_of", asOf).
		Float64("score", snapshot.Composite.Score).
		Str("regime", string(snapshot.Regime.Regime)).
		Str("signal", string(snapshot.Signal.Type)).
		Str("consistency", string(snapshot.Consistency.State)).
		Int("opportunities", len(snapshot.Opportunities)).
		Msg("canonical snapshot committed")

	return snapshot, nil
}

// Ensure returns the canonical snapshot for asOf, recomputing when none
// exists or the stored one carries a stale contract version.
func (o *Orchestrator) Ensure(ctx context.Context, asOf time.Time) (*domain.DecisionSnapshot, error) {
	asOf = domain.Day(asOf)
	existing, err := o.deps.Store.Snapshots.GetByDate(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ContractVersion == ContractVersion {
		return existing, nil
	}
	if existing != nil {
		log.Info().
			Time("as_of", asOf).
			Str("stored_version", existing.ContractVersion).
			Str("current_version", ContractVersion).
			Msg("contract version mismatch, recomputing")
	}
	return o.Refresh(ctx, asOf)
}

// Backfill refreshes every date in [from, to] as independent units of work
// with bounded concurrency. Dates write disjoint keys, so concurrent runs
// cannot conflict. The first error aborts scheduling of further dates.
func (o *Orchestrator) Backfill(ctx context.Context, from, to time.Time) error {
	from, to = domain.Day(from), domain.Day(to)
	if to.Before(from) {
		return fmt.Errorf("backfill range inverted: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	workers := o.config.BackfillWorkers
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var mu sync.Mutex
	var firstErr error
	var wg sync.WaitGroup

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		mu.Lock()
		abort := firstErr != nil
		mu.Unlock()
		if abort || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(date time.Time) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := o.Refresh(ctx, date); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("backfill: %w", firstErr)
	}
	return ctx.Err()
}

// compute runs the dependency-ordered pipeline without committing anything.
func (o *Orchestrator) compute(ctx context.Context, asOf time.Time, runID string) (*domain.DecisionSnapshot, []domain.LedgerRow, error) {
	composite, ranks, err := o.deps.Aggregator.ComputeComposite(ctx, asOf)
	if errors.Is(err, indexer.ErrNoUsableIndicators) {
		reason := DegradedNoData
		return &domain.DecisionSnapshot{
			ContractVersion: ContractVersion,
			RunID:           runID,
			AsOf:            asOf,
			DegradedReason:  &reason,
			GeneratedAt:     time.Now().UTC(),
		}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("composite: %w", err)
	}

	regimeResult, err := o.deps.Detector.Detect(ctx, asOf)
	if err != nil {
		return nil, nil, fmt.Errorf("regime: %w", err)
	}

	staleCritical, staleNonCritical, maxStaleDays := o.staleness(asOf, ranks)
	if o.deps.Metrics != nil {
		for i := 0; i < staleCritical; i++ {
			o.deps.Metrics.IndicatorsExcluded.WithLabelValues("stale_critical").Inc()
		}
	}

	sig := o.deps.Signals.Derive(signal.Inputs{
		Date:                 asOf,
		Score:                composite.Score,
		Regime:               regimeResult.Regime,
		Delta7d:              composite.Delta7d,
		VolatilityPercentile: o.volatilityPercentile(ranks),
	})

	outcomes, err := o.deps.Store.Outcomes.Outcomes(ctx, o.config.CalibrationMetric, o.config.Horizon)
	if err != nil {
		return nil, nil, fmt.Errorf("calibration outcomes: %w", err)
	}
	calSnap := o.deps.Calibrator.BuildSnapshot(o.config.CalibrationMetric, o.config.Horizon, outcomes)

	candidates, err := o.buildCandidates(ctx, asOf, composite, sig, calSnap, maxStaleDays)
	if err != nil {
		return nil, nil, fmt.Errorf("candidates: %w", err)
	}

	stance, conflict := deriveStance(regimeResult.Regime, sig)
	consistencySnap := o.deps.Checker.Check(consistency.Inputs{
		Stance:             stance,
		ConflictState:      conflict,
		Regime:             regimeResult.Regime,
		BaseSignal:         sig.BaseType,
		StaleCritical:      staleCritical,
		StaleNonCritical:   staleNonCritical,
		CalibrationQuality: calSnap.Quality,
		ScenarioSampleSize: calSnap.Total,
		PrimaryAllocation:  sig.Allocation,
		SizingAllocation:   sig.Allocation,
	})

	run := opportunity.RunContext{
		RunID:                 runID,
		AsOf:                  asOf,
		Horizon:               o.config.Horizon,
		DataQualitySuppressed: staleCritical > 0 || consistencySnap.State == domain.ConsistencyFail,
	}
	published, ledgerRows := o.deps.Gate.Evaluate(run, candidates)
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveLedger(ledgerRows)
	}

	snapshot := &domain.DecisionSnapshot{
		ContractVersion: ContractVersion,
		RunID:           runID,
		AsOf:            asOf,
		Composite:       composite,
		Regime:          regimeResult,
		Signal:          sig,
		CalibrationRefs: []domain.CalibrationSnapshot{*calSnap},
		Opportunities:   published,
		Consistency:     consistencySnap,
		GeneratedAt:     time.Now().UTC(),
	}
	return snapshot, ledgerRows, nil
}

// commit persists the run's outputs. Writes are idempotent per date, so a
// retried commit converges instead of duplicating.
func (o *Orchestrator) commit(ctx context.Context, snapshot *domain.DecisionSnapshot, ledgerRows []domain.LedgerRow) error {
	if err := o.deps.Store.Scores.UpsertComposite(ctx, snapshot.Composite); err != nil {
		return fmt.Errorf("commit composite: %w", err)
	}
	if err := o.deps.Store.Regimes.Upsert(ctx, snapshot.Regime); err != nil {
		return fmt.Errorf("commit regime: %w", err)
	}
	if err := o.deps.Store.Ledger.Append(ctx, ledgerRows); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	if err := o.deps.Store.Snapshots.Replace(ctx, snapshot); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// buildCandidates derives one candidate per composite category (theme).
func (o *Orchestrator) buildCandidates(
	ctx context.Context,
	asOf time.Time,
	composite *domain.CompositeScore,
	sig *domain.Signal,
	calSnap *domain.CalibrationSnapshot,
	stalenessDays int,
) ([]domain.OpportunityCandidate, error) {
	candidates := make([]domain.OpportunityCandidate, 0, len(composite.Categories))

	for _, cat := range composite.Categories {
		direction := o.direction(cat.Score)

		forecast, err := o.modelForecast(ctx, composite, cat)
		if err != nil {
			// Model trouble degrades the component, never the run.
			log.Warn().Err(err).Str("theme", cat.Category).Msg("model forecast unavailable")
			forecast = nil
		}

		var analogRate *float64
		if o.deps.Analogs != nil {
			analogRate, err = o.deps.Analogs.HitRate(ctx, cat.Category, direction, asOf)
			if err != nil {
				log.Warn().Err(err).Str("theme", cat.Category).Msg("analog lookup unavailable")
				analogRate = nil
			}
		}

		conviction, raw, factor, components := opportunity.BlendConviction(o.deps.Conviction, opportunity.ThemeInput{
			ThemeID:            cat.Category,
			Direction:          direction,
			ModelForecast:      forecast,
			AnalogHitRate:      analogRate,
			SignalAllocation:   sig.Allocation,
			ThemeStrength:      cat.Score,
			StalenessDays:      stalenessDays,
			CalibrationQuality: calSnap.Quality,
		})

		expectancy, err := o.expectancy(ctx, cat.Category, direction)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, domain.OpportunityCandidate{
			ID:            opportunity.CandidateID(cat.Category, direction),
			ThemeID:       cat.Category,
			Direction:     direction,
			Conviction:    conviction,
			RawConviction: raw,
			QualityFactor: factor,
			Components:    components,
			Calibration:   o.deps.Calibrator.Ref(calSnap, conviction),
			Expectancy:    expectancy,
		})
	}

	return candidates, nil
}

func (o *Orchestrator) expectancy(ctx context.Context, themeID string, direction domain.Direction) (*domain.ExpectancyRef, error) {
	theme, err := o.deps.Store.Outcomes.ThemeReturns(ctx, themeID, direction, o.config.Horizon)
	if err != nil {
		return nil, fmt.Errorf("theme returns %s: %w", themeID, err)
	}
	prior, err := o.deps.Store.Outcomes.DirectionReturns(ctx, direction, o.config.Horizon)
	if err != nil {
		return nil, fmt.Errorf("direction returns %s: %w", direction, err)
	}
	return opportunity.ResolveExpectancy(theme, prior), nil
}

// modelForecast scores the active model for one theme. nil when no model is
// configured or the store has no parameters.
func (o *Orchestrator) modelForecast(ctx context.Context, composite *domain.CompositeScore, cat domain.CategoryScore) (*float64, error) {
	if o.deps.Models == nil || o.config.ModelKey == "" {
		return nil, nil
	}

	m, found, err := o.deps.Models.Model(ctx, o.config.ModelKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	named := map[string]float64{
		"composite_score": composite.Score,
		"theme_strength":  cat.Score,
		"theme_weight":    cat.Weight,
	}
	if composite.Delta7d != nil {
		named["delta_7d"] = *composite.Delta7d
	}
	for _, c := range composite.Categories {
		named["category_"+c.Category] = c.Score
	}

	pred, err := model.Predict(m, model.Features{Named: named})
	if err != nil {
		return nil, err
	}
	return &pred, nil
}

// direction maps theme strength onto a stance via fixed cut points.
func (o *Orchestrator) direction(strength float64) domain.Direction {
	switch {
	case strength >= o.config.BullishAt:
		return domain.DirectionBullish
	case strength <= o.config.BearishAt:
		return domain.DirectionBearish
	default:
		return domain.DirectionNeutral
	}
}

// staleness counts indicators whose observation is older than their
// configured freshness budget, split by criticality, and reports the worst
// staleness in days for conviction shrinkage.
func (o *Orchestrator) staleness(asOf time.Time, ranks []indexer.IndicatorRank) (critical, nonCritical, maxDays int) {
	for _, r := range ranks {
		if r.Spec.StaleAfterDays <= 0 {
			continue
		}
		days := int(asOf.Sub(domain.Day(r.ObservedOn)).Hours() / 24)
		if days > maxDays {
			maxDays = days
		}
		if days <= r.Spec.StaleAfterDays {
			continue
		}
		if r.Spec.Critical {
			critical++
		} else {
			nonCritical++
		}
	}
	return critical, nonCritical, maxDays
}

// volatilityPercentile recovers the raw (uninverted) volatility percentile
// for the signal engine's elevated-volatility predicate.
func (o *Orchestrator) volatilityPercentile(ranks []indexer.IndicatorRank) *float64 {
	if o.config.VolatilityIndicator == "" {
		return nil
	}
	for _, r := range ranks {
		if r.Spec.ID != o.config.VolatilityIndicator {
			continue
		}
		pct := r.Percentile
		if r.Spec.Invert {
			pct = 100.0 - pct
		}
		return &pct
	}
	return nil
}

// deriveStance maps the final signal onto the published stance. A regime
// fighting the pre-penalty signal is a conflict state and forces MIXED
// framing regardless of the final posture.
func deriveStance(r domain.Regime, sig *domain.Signal) (domain.Stance, bool) {
	defensiveBase := sig.BaseType == domain.SignalDefensive || sig.BaseType == domain.SignalRiskOff
	conflict := (r == domain.RegimeRiskOff && sig.BaseType == domain.SignalFullRisk) ||
		(r == domain.RegimeRiskOn && defensiveBase)

	if conflict {
		return domain.StanceMixed, true
	}
	return consistency.DerivePosture(sig.BaseType), false
}

func (o *Orchestrator) startStep(step string) stepTimer {
	if o.deps.Metrics == nil {
		return stepTimer{}
	}
	return stepTimer{inner: o.deps.Metrics.StartStep(step)}
}

func (o *Orchestrator) countRun(status string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunsTotal.WithLabelValues(status).Inc()
	}
}

type stepTimer struct{ inner *metrics.StepTimer }

func (t stepTimer) stop(result string) {
	if t.inner != nil {
		t.inner.Stop(result)
	}
}
