package bias

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-caliper/internal/domain"
	"github.com/ahrav/go-caliper/internal/ports"
)

// foldCaser is a package-level Unicode case folder for performance.
var foldCaser = cases.Fold()

// ConsistencyConfig configures a ConsistencyChecker.
type ConsistencyConfig struct {
	// Repetitions is how many times each sample is judged.
	Repetitions int `yaml:"repetitions" json:"repetitions" validate:"required,min=2,max=20"`

	// MaxConcurrency bounds parallel judge calls.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"required,min=1,max=20"`

	// AgreementFloor is the agreement rate at or above which a sample
	// counts as consistent.
	AgreementFloor float64 `yaml:"agreement_floor" json:"agreement_floor" validate:"min=0.0,max=1.0"`
}

// DefaultConsistencyConfig returns the configuration used for zero-valued
// input.
func DefaultConsistencyConfig() ConsistencyConfig {
	return ConsistencyConfig{
		Repetitions:    5,
		MaxConcurrency: 5,
		AgreementFloor: 0.8,
	}
}

// ConsistencyResult describes how stable a judge's decision is for one
// sample across repeated calls.
type ConsistencyResult struct {
	// AgreementRate is the fraction of repetitions matching the
	// majority verdict.
	AgreementRate float64 `json:"agreement_rate"`

	// PassedRatio is the fraction of repetitions that passed the
	// output.
	PassedRatio float64 `json:"passed_ratio"`

	// MeanConfidence and ConfidenceVariance summarize the judge's
	// self-reported confidence across repetitions.
	MeanConfidence     float64 `json:"mean_confidence"`
	ConfidenceVariance float64 `json:"confidence_variance"`

	// ReasoningSimilarity is the mean pairwise normalized edit
	// similarity of the case-folded reasoning texts. Drift in rationale
	// often precedes verdict flips.
	ReasoningSimilarity float64 `json:"reasoning_similarity"`

	// Consistent is true when AgreementRate meets the configured floor.
	Consistent bool `json:"consistent"`

	// FailedRepetitions counts judge calls that errored; the statistics
	// above cover only the surviving repetitions. Partial is true when
	// any repetition failed.
	FailedRepetitions int  `json:"failed_repetitions"`
	Partial           bool `json:"partial"`

	// Judgments holds the surviving repetitions.
	Judgments []domain.Judgment `json:"judgments"`
}

// ConsistencyBatchResult aggregates consistency checks over a batch.
type ConsistencyBatchResult struct {
	// Results holds per-sample outcomes in input order.
	Results []ConsistencyResult `json:"results"`

	// ConsistencyRate is the fraction of consistent samples.
	ConsistencyRate float64 `json:"consistency_rate"`

	// MeanAgreement and MeanConfidenceVariance average the per-sample
	// statistics.
	MeanAgreement          float64 `json:"mean_agreement"`
	MeanConfidenceVariance float64 `json:"mean_confidence_variance"`

	// Inconsistent lists the indices of samples below the agreement
	// floor.
	Inconsistent []int `json:"inconsistent"`

	// FailedSamples lists the indices of samples whose every repetition
	// failed; their Results entries are zero-valued and excluded from the
	// aggregates. Partial is true when any sample failed fully or lost
	// repetitions.
	FailedSamples []int `json:"failed_samples,omitempty"`
	Partial       bool  `json:"partial"`
}

// ConsistencyChecker measures a judge's verdict stability by repeating the
// same judgment and comparing outcomes.
type ConsistencyChecker struct {
	caller ports.JudgeCaller
	config ConsistencyConfig
	tracer trace.Tracer
}

// NewConsistencyChecker builds a checker over caller. A zero-valued config
// is replaced with defaults.
func NewConsistencyChecker(caller ports.JudgeCaller, config ConsistencyConfig) (*ConsistencyChecker, error) {
	if caller == nil {
		return nil, fmt.Errorf("judge caller cannot be nil")
	}
	if config == (ConsistencyConfig{}) {
		config = DefaultConsistencyConfig()
	}
	if config.Repetitions < 2 {
		return nil, &domain.InvalidArgumentError{Argument: "repetitions", Reason: "must be at least 2"}
	}
	if config.MaxConcurrency < 1 {
		return nil, &domain.InvalidArgumentError{Argument: "max_concurrency", Reason: "must be at least 1"}
	}
	if config.AgreementFloor < 0 || config.AgreementFloor > 1 {
		return nil, &domain.InvalidArgumentError{Argument: "agreement_floor", Reason: "must be in [0, 1]"}
	}

	return &ConsistencyChecker{
		caller: caller,
		config: config,
		tracer: otel.Tracer("caliper/bias"),
	}, nil
}

// Check judges the sample Repetitions times concurrently and summarizes the
// stability of the outcomes. Failed repetitions are excluded from the
// statistics and counted; the check only errors when every repetition fails
// or the context is canceled.
func (cc *ConsistencyChecker) Check(ctx context.Context, input, output, criteria string) (ConsistencyResult, error) {
	if criteria == "" {
		return ConsistencyResult{}, domain.ErrMissingCriteria
	}

	ctx, span := cc.tracer.Start(ctx, "consistency_checker.check",
		trace.WithAttributes(attribute.Int("check.repetitions", cc.config.Repetitions)))
	defer span.End()

	judgments := make([]domain.Judgment, cc.config.Repetitions)
	errs := make([]error, cc.config.Repetitions)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cc.config.MaxConcurrency)
	for i := 0; i < cc.config.Repetitions; i++ {
		g.Go(func() error {
			judgment, err := cc.caller.CallJudge(gctx, input, output, criteria, nil)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				errs[i] = err
				return nil
			}
			judgments[i] = judgment
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check canceled")
		return ConsistencyResult{}, fmt.Errorf("consistency check aborted: %w", err)
	}

	survivors := judgments[:0]
	var failed int
	var firstErr error
	for i := range judgments {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		survivors = append(survivors, judgments[i])
	}
	if len(survivors) == 0 {
		err := fmt.Errorf("all %d repetitions failed: %w", cc.config.Repetitions, firstErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no usable repetitions")
		return ConsistencyResult{}, err
	}

	result := cc.summarize(survivors)
	result.FailedRepetitions = failed
	result.Partial = failed > 0
	span.SetAttributes(
		attribute.Float64("check.agreement_rate", result.AgreementRate),
		attribute.Bool("check.consistent", result.Consistent),
		attribute.Int("check.failed_repetitions", failed),
	)
	return result, nil
}

func (cc *ConsistencyChecker) summarize(judgments []domain.Judgment) ConsistencyResult {
	passed := 0
	confidences := make([]float64, len(judgments))
	for i, j := range judgments {
		confidences[i] = j.Confidence
		if j.Verdict {
			passed++
		}
	}

	total := len(judgments)
	majority := passed
	if total-passed > majority {
		majority = total - passed
	}

	result := ConsistencyResult{
		AgreementRate:       float64(majority) / float64(total),
		PassedRatio:         float64(passed) / float64(total),
		MeanConfidence:      domain.Mean(confidences),
		ConfidenceVariance:  domain.Variance(confidences),
		ReasoningSimilarity: meanReasoningSimilarity(judgments),
		Judgments:           judgments,
	}
	result.Consistent = result.AgreementRate >= cc.config.AgreementFloor
	return result
}

// CheckBatch checks every sample and aggregates batch-level stability. A
// sample whose every repetition fails is recorded in FailedSamples and
// excluded from the aggregates; it never aborts the rest of the batch. The
// batch errors only when every sample fails or the context is canceled.
func (cc *ConsistencyChecker) CheckBatch(ctx context.Context, samples []domain.EvaluationSample, criteria string) (ConsistencyBatchResult, error) {
	if len(samples) == 0 {
		return ConsistencyBatchResult{}, domain.ErrNoSamples
	}

	ctx, span := cc.tracer.Start(ctx, "consistency_checker.check_batch",
		trace.WithAttributes(attribute.Int("batch.size", len(samples))))
	defer span.End()

	batch := ConsistencyBatchResult{Results: make([]ConsistencyResult, len(samples))}
	var succeeded int
	var lastErr error
	for i, sample := range samples {
		result, err := cc.Check(ctx, sample.Input, sample.Output, criteria)
		if err != nil {
			if ctx.Err() != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "batch canceled")
				return ConsistencyBatchResult{}, fmt.Errorf("sample %d: %w", i, err)
			}
			batch.FailedSamples = append(batch.FailedSamples, i)
			lastErr = err
			continue
		}
		batch.Results[i] = result
		succeeded++

		batch.MeanAgreement += result.AgreementRate
		batch.MeanConfidenceVariance += result.ConfidenceVariance
		if result.Partial {
			batch.Partial = true
		}
		if result.Consistent {
			batch.ConsistencyRate++
		} else {
			batch.Inconsistent = append(batch.Inconsistent, i)
		}
	}
	if succeeded == 0 {
		err := fmt.Errorf("all %d samples failed: %w", len(samples), lastErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no usable samples")
		return ConsistencyBatchResult{}, err
	}

	n := float64(succeeded)
	batch.ConsistencyRate /= n
	batch.MeanAgreement /= n
	batch.MeanConfidenceVariance /= n
	batch.Partial = batch.Partial || len(batch.FailedSamples) > 0

	span.SetAttributes(
		attribute.Float64("batch.consistency_rate", batch.ConsistencyRate),
		attribute.Int("batch.failed_samples", len(batch.FailedSamples)),
	)
	return batch, nil
}

// meanReasoningSimilarity averages pairwise normalized edit similarity over
// all reasoning texts, after Unicode case folding. Identical reasoning
// yields 1; empty-versus-empty pairs also count as 1.
func meanReasoningSimilarity(judgments []domain.Judgment) float64 {
	if len(judgments) < 2 {
		return 1
	}

	var sum float64
	var pairs int
	for i := 0; i < len(judgments); i++ {
		for j := i + 1; j < len(judgments); j++ {
			sum += reasoningSimilarity(judgments[i].Reasoning, judgments[j].Reasoning)
			pairs++
		}
	}
	return sum / float64(pairs)
}

func reasoningSimilarity(a, b string) float64 {
	a = foldCaser.String(a)
	b = foldCaser.String(b)
	if a == b {
		return 1
	}

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(maxLen)
}
