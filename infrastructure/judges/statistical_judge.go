// Package judges implements calibrated statistical judges and multi-judge
// consensus evaluation on top of the ports.JudgeCaller capability.
//
// A StatisticalJudge measures a judge model's error rates against labeled
// data, then uses the Rogan-Gladen estimator to correct observed pass rates
// for those errors. MultiJudgeEvaluator combines several calibrated judges
// into consensus decisions.
package judges

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-caliper/internal/domain"
	"github.com/ahrav/go-caliper/internal/ports"
)

var validate = validator.New()

// JudgeConfig configures a StatisticalJudge.
type JudgeConfig struct {
	// Temperature is passed to every judge call; low values keep
	// verdicts stable.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`

	// MaxConcurrency bounds parallel judge calls during calibration and
	// batch evaluation.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"required,min=1,max=50"`

	// MinPositive and MinNegative are the class minimums a calibration
	// set must survive with after failed calls are excluded.
	MinPositive int `yaml:"min_positive" json:"min_positive" validate:"required,min=1"`
	MinNegative int `yaml:"min_negative" json:"min_negative" validate:"required,min=1"`
}

// DefaultJudgeConfig returns the configuration used for zero-valued input.
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{
		Temperature:    0.1,
		MaxConcurrency: 5,
		MinPositive:    domain.DefaultMinPositive,
		MinNegative:    domain.DefaultMinNegative,
	}
}

// JudgeSummary is a snapshot of a judge's identity and calibration signal.
type JudgeSummary struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	Calibrated       bool    `json:"calibrated"`
	Sensitivity      float64 `json:"sensitivity"`
	Specificity      float64 `json:"specificity"`
	BetterThanRandom bool    `json:"better_than_random"`
}

// StatisticalJudge wraps one judge model with calibration-aware evaluation.
// Calibration state is an immutable snapshot swapped atomically, so reads
// never block evaluations; Calibrate runs are serialized.
type StatisticalJudge struct {
	caller  ports.JudgeCaller
	config  JudgeConfig
	metrics ports.MetricsCollector
	tracer  trace.Tracer

	calibrateMu sync.Mutex
	state       atomic.Pointer[domain.CalibrationState]
}

// NewStatisticalJudge builds a judge over caller. A zero-valued config is
// replaced with defaults; a nil metrics collector disables metrics.
func NewStatisticalJudge(caller ports.JudgeCaller, config JudgeConfig, metrics ports.MetricsCollector) (*StatisticalJudge, error) {
	if caller == nil {
		return nil, fmt.Errorf("judge caller cannot be nil")
	}
	if config == (JudgeConfig{}) {
		config = DefaultJudgeConfig()
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid judge config: %w", err)
	}

	return &StatisticalJudge{
		caller:  caller,
		config:  config,
		metrics: metrics,
		tracer:  otel.Tracer("caliper/judges"),
	}, nil
}

// Model returns the wrapped judge's model identifier.
func (sj *StatisticalJudge) Model() string { return sj.caller.Model() }

// Calibrated reports whether a calibration run has completed.
func (sj *StatisticalJudge) Calibrated() bool { return sj.state.Load() != nil }

// CalibrationState returns the current calibration snapshot, or
// ErrNotCalibrated when none exists.
func (sj *StatisticalJudge) CalibrationState() (domain.CalibrationState, error) {
	state := sj.state.Load()
	if state == nil {
		return domain.CalibrationState{}, domain.ErrNotCalibrated
	}
	return *state, nil
}

// ResetCalibration discards the calibration state, returning the judge to
// its uncalibrated condition.
func (sj *StatisticalJudge) ResetCalibration() { sj.state.Store(nil) }

// BetterThanRandom reports whether the calibrated error rates satisfy
// sensitivity + specificity > 1. An uncalibrated judge is never better than
// random.
func (sj *StatisticalJudge) BetterThanRandom() bool {
	state := sj.state.Load()
	return state != nil && state.BetterThanRandom()
}

// Summary reports the judge's identity and calibration signal.
func (sj *StatisticalJudge) Summary() JudgeSummary {
	summary := JudgeSummary{
		Model:       sj.caller.Model(),
		Temperature: sj.config.Temperature,
	}
	if state := sj.state.Load(); state != nil {
		summary.Calibrated = true
		summary.Sensitivity = state.Sensitivity
		summary.Specificity = state.Specificity
		summary.BetterThanRandom = state.BetterThanRandom()
	}
	return summary
}

// Calibrate measures the judge's sensitivity and specificity against the
// labeled set. Judge calls fan out bounded by MaxConcurrency; per-sample
// failures are excluded from the estimates and counted in FailedSamples.
// Calibration fails when the surviving class counts drop below the
// configured minimums.
func (sj *StatisticalJudge) Calibrate(ctx context.Context, set *domain.CalibrationSet, criteria string) (domain.CalibrationState, error) {
	if criteria == "" {
		return domain.CalibrationState{}, domain.ErrMissingCriteria
	}
	if err := set.Validate(sj.config.MinPositive, sj.config.MinNegative); err != nil {
		return domain.CalibrationState{}, err
	}

	sj.calibrateMu.Lock()
	defer sj.calibrateMu.Unlock()

	ctx, span := sj.tracer.Start(ctx, "statistical_judge.calibrate",
		trace.WithAttributes(
			attribute.String("judge.model", sj.caller.Model()),
			attribute.Int("calibration.samples", set.Len()),
		))
	defer span.End()
	start := time.Now()

	samples := set.Samples()
	type outcome struct {
		verdict bool
		failed  bool
	}
	outcomes := make([]outcome, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sj.config.MaxConcurrency)
	for i, sample := range samples {
		g.Go(func() error {
			judgment, err := sj.callJudge(gctx, sample.Input, sample.Output, criteria)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				outcomes[i] = outcome{failed: true}
				return nil
			}
			outcomes[i] = outcome{verdict: judgment.Verdict}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "calibration canceled")
		return domain.CalibrationState{}, fmt.Errorf("calibration aborted: %w", err)
	}

	var truePositives, trueNegatives, m1, m0, failed int
	for i, sample := range samples {
		if outcomes[i].failed {
			failed++
			continue
		}
		if sample.GroundTruth {
			m1++
			if outcomes[i].verdict {
				truePositives++
			}
		} else {
			m0++
			if !outcomes[i].verdict {
				trueNegatives++
			}
		}
	}

	if m1 < sj.config.MinPositive || m0 < sj.config.MinNegative {
		err := &domain.InsufficientCalibrationDataError{
			RequiredPositive: sj.config.MinPositive,
			RequiredNegative: sj.config.MinNegative,
			ActualPositive:   m1,
			ActualNegative:   m0,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "too many failed judge calls")
		return domain.CalibrationState{}, fmt.Errorf("calibration lost %d samples to judge failures: %w", failed, err)
	}

	state := domain.CalibrationState{
		Sensitivity:   float64(truePositives) / float64(m1),
		Specificity:   float64(trueNegatives) / float64(m0),
		CalibratedAt:  time.Now().UTC(),
		Criteria:      criteria,
		M1:            m1,
		M0:            m0,
		TruePositives: truePositives,
		TrueNegatives: trueNegatives,
		FailedSamples: failed,
	}
	sj.state.Store(&state)

	span.SetAttributes(
		attribute.Float64("calibration.sensitivity", state.Sensitivity),
		attribute.Float64("calibration.specificity", state.Specificity),
		attribute.Int("calibration.failed_samples", failed),
	)
	sj.recordOperation("calibrate", start)
	sj.recordGauges(state)
	return state, nil
}

// BiasCorrectedAccuracy corrects an observed pass rate p for the judge's
// calibrated error rates using the Rogan-Gladen estimator, clamped to
// [0, 1]. It returns ErrNotCalibrated before calibration and
// ErrUninformativeJudge when sensitivity + specificity is indistinguishable
// from 1.
func (sj *StatisticalJudge) BiasCorrectedAccuracy(p float64) (float64, error) {
	if p < 0 || p > 1 {
		return 0, &domain.InvalidArgumentError{Argument: "p", Reason: "observed rate must be in [0, 1]"}
	}
	state := sj.state.Load()
	if state == nil {
		return 0, domain.ErrNotCalibrated
	}
	if !state.Informative() {
		return 0, domain.ErrUninformativeJudge
	}

	theta := (p + state.Specificity - 1) / (state.Specificity + state.Sensitivity - 1)
	return domain.Clamp01(theta), nil
}

// ConfidenceInterval returns the bias-corrected estimate for observed rate p
// over testN samples with a 1-alpha interval. The delta method propagates
// both test-set sampling variance and calibration-set uncertainty, so the
// interval honestly widens when calibration data is thin.
func (sj *StatisticalJudge) ConfidenceInterval(p float64, testN int, alpha float64) (domain.ConfidenceInterval, error) {
	if testN <= 0 {
		return domain.ConfidenceInterval{}, &domain.InvalidArgumentError{Argument: "testN", Reason: "must be positive"}
	}
	if alpha <= 0 || alpha >= 1 {
		return domain.ConfidenceInterval{}, &domain.InvalidArgumentError{Argument: "alpha", Reason: "must be in (0, 1)"}
	}

	theta, err := sj.BiasCorrectedAccuracy(p)
	if err != nil {
		return domain.ConfidenceInterval{}, err
	}
	state := sj.state.Load()

	q1, q0 := state.Sensitivity, state.Specificity
	d := q0 + q1 - 1
	d2 := d * d

	testVariance := p * (1 - p) / (float64(testN) * d2)

	calibrationVariance := ((q1-p)*(q1-p)*q0*(1-q0)/float64(state.M0) +
		(p+q0-1)*(p+q0-1)*q1*(1-q1)/float64(state.M1)) / (d2 * d2)

	se := math.Sqrt(testVariance + calibrationVariance)
	z := domain.NormalQuantile(1 - alpha/2)

	return domain.ConfidenceInterval{
		PointEstimate:       theta,
		Lower:               domain.Clamp01(theta - z*se),
		Upper:               domain.Clamp01(theta + z*se),
		ConfidenceLevel:     1 - alpha,
		StandardError:       se,
		TestVariance:        testVariance,
		CalibrationVariance: calibrationVariance,
		TestN:               testN,
		M1:                  state.M1,
		M0:                  state.M0,
	}, nil
}

// Evaluate judges a single input/output pair as a batch of one.
func (sj *StatisticalJudge) Evaluate(ctx context.Context, input, output, criteria string) (domain.BatchResult, error) {
	return sj.EvaluateBatch(ctx, []domain.EvaluationSample{{Input: input, Output: output}}, criteria)
}

// EvaluateBatch judges every sample concurrently and aggregates the outcome
// into a bias-corrected batch result. Per-sample judge failures are recorded
// in the individual results without aborting the batch; the result is
// marked Partial when any occur.
func (sj *StatisticalJudge) EvaluateBatch(ctx context.Context, samples []domain.EvaluationSample, criteria string) (domain.BatchResult, error) {
	if criteria == "" {
		return domain.BatchResult{}, domain.ErrMissingCriteria
	}
	if len(samples) == 0 {
		return domain.BatchResult{}, domain.ErrNoSamples
	}
	state := sj.state.Load()
	if state == nil {
		return domain.BatchResult{}, domain.ErrNotCalibrated
	}

	ctx, span := sj.tracer.Start(ctx, "statistical_judge.evaluate_batch",
		trace.WithAttributes(
			attribute.String("judge.model", sj.caller.Model()),
			attribute.Int("batch.size", len(samples)),
		))
	defer span.End()
	start := time.Now()

	individual := make([]domain.IndividualResult, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sj.config.MaxConcurrency)
	for i, sample := range samples {
		g.Go(func() error {
			judgment, err := sj.callJudge(gctx, sample.Input, sample.Output, criteria)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				err = &domain.JudgeCallError{Model: sj.caller.Model(), SampleIndex: i, Err: err}
			}
			individual[i] = domain.IndividualResult{Sample: sample, Judgment: judgment, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch canceled")
		return domain.BatchResult{}, fmt.Errorf("batch evaluation aborted: %w", err)
	}

	var passed, judged, failed int
	for _, r := range individual {
		if r.Failed() {
			failed++
			continue
		}
		judged++
		if r.Judgment.Verdict {
			passed++
		}
	}
	if judged == 0 {
		err := fmt.Errorf("all %d judge calls failed", len(samples))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no usable judgments")
		return domain.BatchResult{}, err
	}

	rawAccuracy := float64(passed) / float64(judged)
	interval, err := sj.ConfidenceInterval(rawAccuracy, judged, 0.05)
	if err != nil {
		span.RecordError(err)
		return domain.BatchResult{}, err
	}

	span.SetAttributes(
		attribute.Float64("batch.raw_accuracy", rawAccuracy),
		attribute.Float64("batch.corrected_accuracy", interval.PointEstimate),
		attribute.Int("batch.errors", failed),
	)
	sj.recordOperation("evaluate_batch", start)

	return domain.BatchResult{
		RawAccuracy:           rawAccuracy,
		BiasCorrectedAccuracy: interval.PointEstimate,
		Interval:              interval,
		PassedCount:           passed,
		TotalCount:            judged,
		ErrorCount:            failed,
		Partial:               failed > 0,
		Individual:            individual,
		Calibration:           *state,
	}, nil
}

func (sj *StatisticalJudge) callJudge(ctx context.Context, input, output, criteria string) (domain.Judgment, error) {
	return sj.caller.CallJudge(ctx, input, output, criteria, map[string]any{
		"temperature": sj.config.Temperature,
	})
}

func (sj *StatisticalJudge) recordOperation(operation string, start time.Time) {
	if sj.metrics == nil {
		return
	}
	sj.metrics.RecordLatency(operation, time.Since(start), map[string]string{"model": sj.caller.Model()})
}

func (sj *StatisticalJudge) recordGauges(state domain.CalibrationState) {
	if sj.metrics == nil {
		return
	}
	labels := map[string]string{"model": sj.caller.Model()}
	sj.metrics.RecordGauge("judge_sensitivity", state.Sensitivity, labels)
	sj.metrics.RecordGauge("judge_specificity", state.Specificity, labels)
}
