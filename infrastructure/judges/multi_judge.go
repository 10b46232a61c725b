package judges

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-caliper/internal/domain"
	"github.com/ahrav/go-caliper/internal/ports"
)

// MultiJudgeConfig configures a MultiJudgeEvaluator.
type MultiJudgeConfig struct {
	// MaxConcurrency bounds parallel judge calls per evaluation.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"required,min=1,max=50"`

	// AgreementFloor is the per-sample agreement rate below which a
	// sample counts as high disagreement in batch aggregates.
	AgreementFloor float64 `yaml:"agreement_floor" json:"agreement_floor" validate:"min=0.0,max=1.0"`
}

// DefaultMultiJudgeConfig returns the configuration used for zero-valued
// input.
func DefaultMultiJudgeConfig() MultiJudgeConfig {
	return MultiJudgeConfig{
		MaxConcurrency: 10,
		AgreementFloor: 0.7,
	}
}

// MultiJudgeEvaluator combines two or more statistical judges into consensus
// decisions. A failed judge becomes an error vote excluded from tallies; it
// never corrupts the count or aborts the panel.
type MultiJudgeEvaluator struct {
	judges  []*StatisticalJudge
	config  MultiJudgeConfig
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewMultiJudgeEvaluator builds an evaluator over the given judges. Fewer
// than two judges is a construction error.
func NewMultiJudgeEvaluator(panel []*StatisticalJudge, config MultiJudgeConfig, metrics ports.MetricsCollector) (*MultiJudgeEvaluator, error) {
	if len(panel) < 2 {
		return nil, domain.ErrTooFewJudges
	}
	if config == (MultiJudgeConfig{}) {
		config = DefaultMultiJudgeConfig()
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid multi-judge config: %w", err)
	}

	return &MultiJudgeEvaluator{
		judges:  panel,
		config:  config,
		metrics: metrics,
		tracer:  otel.Tracer("caliper/judges"),
	}, nil
}

// NewMultiJudgeEvaluatorFromCallers wraps each caller in a StatisticalJudge
// with judgeConfig and assembles the panel.
func NewMultiJudgeEvaluatorFromCallers(callers []ports.JudgeCaller, judgeConfig JudgeConfig, config MultiJudgeConfig, metrics ports.MetricsCollector) (*MultiJudgeEvaluator, error) {
	if len(callers) < 2 {
		return nil, domain.ErrTooFewJudges
	}
	panel := make([]*StatisticalJudge, len(callers))
	for i, caller := range callers {
		judge, err := NewStatisticalJudge(caller, judgeConfig, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to build judge %d: %w", i, err)
		}
		panel[i] = judge
	}
	return NewMultiJudgeEvaluator(panel, config, metrics)
}

// Judges returns the panel members.
func (me *MultiJudgeEvaluator) Judges() []*StatisticalJudge { return me.judges }

// CalibrateAll calibrates every panel member against the same set and
// criteria, sequentially so each judge's bounded fan-out is respected.
func (me *MultiJudgeEvaluator) CalibrateAll(ctx context.Context, set *domain.CalibrationSet, criteria string) error {
	for _, judge := range me.judges {
		if _, err := judge.Calibrate(ctx, set, criteria); err != nil {
			return fmt.Errorf("calibration failed for judge %q: %w", judge.Model(), err)
		}
	}
	return nil
}

// collectVotes asks every judge concurrently and returns one vote per judge
// in panel order. Individual failures are captured on the vote.
func (me *MultiJudgeEvaluator) collectVotes(ctx context.Context, input, output, criteria string) ([]domain.JudgeVote, error) {
	votes := make([]domain.JudgeVote, len(me.judges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(me.config.MaxConcurrency)
	for i, judge := range me.judges {
		g.Go(func() error {
			judgment, err := judge.callJudge(gctx, input, output, criteria)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				votes[i] = domain.JudgeVote{Model: judge.Model(), Err: err}
				return nil
			}
			votes[i] = domain.JudgeVote{Model: judge.Model(), Judgment: judgment}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("consensus evaluation aborted: %w", err)
	}
	return votes, nil
}

// tally summarizes the successful votes in a vote slice.
func tally(votes []domain.JudgeVote) (positive, negative, failed int, meanConfidence float64) {
	var confidenceSum float64
	for _, v := range votes {
		if v.Err != nil {
			failed++
			continue
		}
		confidenceSum += v.Judgment.Confidence
		if v.Judgment.Verdict {
			positive++
		} else {
			negative++
		}
	}
	if voted := positive + negative; voted > 0 {
		meanConfidence = confidenceSum / float64(voted)
	}
	return positive, negative, failed, meanConfidence
}

func agreementRate(positive, negative int) float64 {
	voted := positive + negative
	if voted == 0 {
		return 0
	}
	plurality := positive
	if negative > plurality {
		plurality = negative
	}
	return float64(plurality) / float64(voted)
}

// Evaluate runs a simple majority vote. An even split yields Consensus=false
// with Tied=true; callers should treat tied results as undecided rather than
// as a fail verdict.
func (me *MultiJudgeEvaluator) Evaluate(ctx context.Context, input, output, criteria string) (domain.ConsensusResult, error) {
	if criteria == "" {
		return domain.ConsensusResult{}, domain.ErrMissingCriteria
	}

	ctx, span := me.tracer.Start(ctx, "multi_judge.evaluate",
		trace.WithAttributes(attribute.Int("panel.size", len(me.judges))))
	defer span.End()

	votes, err := me.collectVotes(ctx, input, output, criteria)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vote collection failed")
		return domain.ConsensusResult{}, err
	}
	return me.majorityResult(votes)
}

func (me *MultiJudgeEvaluator) majorityResult(votes []domain.JudgeVote) (domain.ConsensusResult, error) {
	positive, negative, failed, meanConfidence := tally(votes)
	if positive+negative == 0 {
		return domain.ConsensusResult{}, fmt.Errorf("all %d judges failed", len(votes))
	}

	equalWeight := 1.0 / float64(positive+negative)
	for i := range votes {
		if votes[i].Err == nil {
			votes[i].Weight = equalWeight
		}
	}

	return domain.ConsensusResult{
		Consensus:      positive > negative,
		Tied:           positive == negative,
		AgreementRate:  agreementRate(positive, negative),
		PositiveVotes:  positive,
		NegativeVotes:  negative,
		TotalJudges:    len(votes),
		FailedJudges:   failed,
		MeanConfidence: meanConfidence,
		Votes:          votes,
		Strategy:       domain.StrategyMajority,
	}, nil
}

// EvaluateWeighted weights each judge's vote by its Youden's J statistic
// (sensitivity + specificity - 1, floored at zero), so better-calibrated
// judges count for more. When every weight is zero the vote falls back to
// equal weights.
func (me *MultiJudgeEvaluator) EvaluateWeighted(ctx context.Context, input, output, criteria string) (domain.ConsensusResult, error) {
	if criteria == "" {
		return domain.ConsensusResult{}, domain.ErrMissingCriteria
	}

	ctx, span := me.tracer.Start(ctx, "multi_judge.evaluate_weighted",
		trace.WithAttributes(attribute.Int("panel.size", len(me.judges))))
	defer span.End()

	votes, err := me.collectVotes(ctx, input, output, criteria)
	if err != nil {
		span.RecordError(err)
		return domain.ConsensusResult{}, err
	}

	positive, negative, failed, meanConfidence := tally(votes)
	if positive+negative == 0 {
		return domain.ConsensusResult{}, fmt.Errorf("all %d judges failed", len(votes))
	}

	weights := make([]float64, len(votes))
	var totalWeight float64
	for i, judge := range me.judges {
		if votes[i].Err != nil {
			continue
		}
		if state, err := judge.CalibrationState(); err == nil {
			weights[i] = state.YoudenJ()
		}
		totalWeight += weights[i]
	}
	if totalWeight == 0 {
		// No judge carries signal; weighting degenerates to equality.
		for i := range weights {
			if votes[i].Err == nil {
				weights[i] = 1
				totalWeight++
			}
		}
	}

	var weightedScore float64
	for i := range votes {
		if votes[i].Err != nil {
			continue
		}
		votes[i].Weight = weights[i] / totalWeight
		if votes[i].Judgment.Verdict {
			weightedScore += votes[i].Weight
		}
	}

	return domain.ConsensusResult{
		Consensus:      weightedScore > 0.5,
		Tied:           weightedScore == 0.5,
		AgreementRate:  agreementRate(positive, negative),
		PositiveVotes:  positive,
		NegativeVotes:  negative,
		TotalJudges:    len(votes),
		FailedJudges:   failed,
		WeightedScore:  weightedScore,
		MeanConfidence: meanConfidence,
		Votes:          votes,
		Strategy:       domain.StrategyWeighted,
	}, nil
}

// EvaluateUnanimous reaches consensus only when every successful judge
// passes the output.
func (me *MultiJudgeEvaluator) EvaluateUnanimous(ctx context.Context, input, output, criteria string) (domain.ConsensusResult, error) {
	result, err := me.Evaluate(ctx, input, output, criteria)
	if err != nil {
		return domain.ConsensusResult{}, err
	}
	result.Consensus = result.NegativeVotes == 0 && result.PositiveVotes > 0
	result.Tied = false
	result.Strategy = domain.StrategyUnanimous
	return result, nil
}

// EvaluateThreshold reaches consensus when the positive vote share is at
// least threshold. The share is computed over the full panel, so a failed
// judge counts against reaching the threshold rather than shrinking the
// denominator.
func (me *MultiJudgeEvaluator) EvaluateThreshold(ctx context.Context, input, output, criteria string, threshold float64) (domain.ConsensusResult, error) {
	if threshold < 0 || threshold > 1 {
		return domain.ConsensusResult{}, &domain.InvalidArgumentError{Argument: "threshold", Reason: "must be in [0, 1]"}
	}
	result, err := me.Evaluate(ctx, input, output, criteria)
	if err != nil {
		return domain.ConsensusResult{}, err
	}
	positiveShare := float64(result.PositiveVotes) / float64(result.TotalJudges)
	result.Consensus = positiveShare >= threshold
	result.Tied = false
	result.Strategy = domain.StrategyThreshold
	return result, nil
}

// EvaluateBatch runs a majority vote on every sample and aggregates
// consensus statistics for the batch. A sample whose entire panel fails is
// recorded in FailedSamples and excluded from the aggregates; it never
// aborts the remaining samples. The batch errors only when every sample
// fails or the context is canceled.
func (me *MultiJudgeEvaluator) EvaluateBatch(ctx context.Context, samples []domain.EvaluationSample, criteria string) (domain.ConsensusBatchResult, error) {
	if criteria == "" {
		return domain.ConsensusBatchResult{}, domain.ErrMissingCriteria
	}
	if len(samples) == 0 {
		return domain.ConsensusBatchResult{}, domain.ErrNoSamples
	}

	ctx, span := me.tracer.Start(ctx, "multi_judge.evaluate_batch",
		trace.WithAttributes(
			attribute.Int("panel.size", len(me.judges)),
			attribute.Int("batch.size", len(samples)),
		))
	defer span.End()
	start := time.Now()

	batch := domain.ConsensusBatchResult{Results: make([]domain.ConsensusResult, len(samples))}
	var succeeded int
	var agreementSum float64
	var lastErr error
	for i, sample := range samples {
		result, err := me.Evaluate(ctx, sample.Input, sample.Output, criteria)
		if err != nil {
			if ctx.Err() != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "batch canceled")
				return domain.ConsensusBatchResult{}, fmt.Errorf("sample %d: %w", i, err)
			}
			batch.FailedSamples = append(batch.FailedSamples, i)
			lastErr = err
			continue
		}
		batch.Results[i] = result
		succeeded++

		agreementSum += result.AgreementRate
		if result.Consensus {
			batch.ConsensusRate++
		}
		if result.AgreementRate < me.config.AgreementFloor {
			batch.HighDisagreementCount++
		}
		if result.Unanimous() {
			batch.UnanimousCount++
		}
	}
	if succeeded == 0 {
		err := fmt.Errorf("all %d samples failed: %w", len(samples), lastErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no usable samples")
		return domain.ConsensusBatchResult{}, err
	}
	batch.ConsensusRate /= float64(succeeded)
	batch.AverageAgreement = agreementSum / float64(succeeded)
	batch.Partial = len(batch.FailedSamples) > 0

	if me.metrics != nil {
		me.metrics.RecordLatency("multi_judge_batch", time.Since(start), nil)
	}
	span.SetAttributes(
		attribute.Float64("batch.consensus_rate", batch.ConsensusRate),
		attribute.Float64("batch.average_agreement", batch.AverageAgreement),
		attribute.Int("batch.failed_samples", len(batch.FailedSamples)),
	)
	return batch, nil
}

// FlagForHumanReview evaluates every sample and returns those whose panel
// agreement fell below threshold or whose majority vote tied, each with a
// reason describing the disagreement.
func (me *MultiJudgeEvaluator) FlagForHumanReview(ctx context.Context, samples []domain.EvaluationSample, criteria string, threshold float64) ([]domain.ReviewFlag, error) {
	if threshold < 0 || threshold > 1 {
		return nil, &domain.InvalidArgumentError{Argument: "threshold", Reason: "must be in [0, 1]"}
	}

	batch, err := me.EvaluateBatch(ctx, samples, criteria)
	if err != nil {
		return nil, err
	}

	failed := make(map[int]bool, len(batch.FailedSamples))
	for _, i := range batch.FailedSamples {
		failed[i] = true
	}

	var flags []domain.ReviewFlag
	for i, result := range batch.Results {
		switch {
		case failed[i]:
			flags = append(flags, domain.ReviewFlag{
				Sample: samples[i],
				Result: result,
				Reason: "every judge call failed",
			})
		case result.Tied:
			flags = append(flags, domain.ReviewFlag{
				Sample: samples[i],
				Result: result,
				Reason: fmt.Sprintf("judges split evenly %d-%d", result.PositiveVotes, result.NegativeVotes),
			})
		case result.AgreementRate < threshold:
			flags = append(flags, domain.ReviewFlag{
				Sample: samples[i],
				Result: result,
				Reason: fmt.Sprintf("agreement %.2f below review threshold %.2f", result.AgreementRate, threshold),
			})
		}
	}
	return flags, nil
}

// InterRaterReliability judges every sample with the full panel and reports
// pairwise agreement plus Fleiss' kappa. Only samples every judge voted on
// successfully enter the statistics.
func (me *MultiJudgeEvaluator) InterRaterReliability(ctx context.Context, samples []domain.EvaluationSample, criteria string) (domain.ReliabilityReport, error) {
	if criteria == "" {
		return domain.ReliabilityReport{}, domain.ErrMissingCriteria
	}
	if len(samples) == 0 {
		return domain.ReliabilityReport{}, domain.ErrNoSamples
	}

	ctx, span := me.tracer.Start(ctx, "multi_judge.inter_rater_reliability",
		trace.WithAttributes(
			attribute.Int("panel.size", len(me.judges)),
			attribute.Int("batch.size", len(samples)),
		))
	defer span.End()

	var completeVotes [][]bool
	for _, sample := range samples {
		votes, err := me.collectVotes(ctx, sample.Input, sample.Output, criteria)
		if err != nil {
			span.RecordError(err)
			return domain.ReliabilityReport{}, err
		}
		verdicts := make([]bool, len(votes))
		complete := true
		for i, v := range votes {
			if v.Err != nil {
				complete = false
				break
			}
			verdicts[i] = v.Judgment.Verdict
		}
		if complete {
			completeVotes = append(completeVotes, verdicts)
		}
	}
	if len(completeVotes) == 0 {
		return domain.ReliabilityReport{}, fmt.Errorf("no sample was judged successfully by the full panel")
	}

	report := domain.ReliabilityReport{
		FleissKappa:  domain.FleissKappa(completeVotes),
		Samples:      len(completeVotes),
		MinAgreement: 1,
	}
	for a := 0; a < len(me.judges); a++ {
		for b := a + 1; b < len(me.judges); b++ {
			matches := 0
			for _, verdicts := range completeVotes {
				if verdicts[a] == verdicts[b] {
					matches++
				}
			}
			agreement := float64(matches) / float64(len(completeVotes))
			report.Pairwise = append(report.Pairwise, domain.PairwiseAgreement{
				JudgeA:    me.judges[a].Model(),
				JudgeB:    me.judges[b].Model(),
				Agreement: agreement,
			})
			report.MeanAgreement += agreement
			if agreement < report.MinAgreement {
				report.MinAgreement = agreement
			}
			if agreement > report.MaxAgreement {
				report.MaxAgreement = agreement
			}
		}
	}
	report.MeanAgreement /= float64(len(report.Pairwise))

	span.SetAttributes(
		attribute.Float64("reliability.fleiss_kappa", report.FleissKappa),
		attribute.Float64("reliability.mean_agreement", report.MeanAgreement),
	)
	return report, nil
}
