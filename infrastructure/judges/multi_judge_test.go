package judges

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-caliper/internal/domain"
	"github.com/ahrav/go-caliper/internal/ports"
	"github.com/ahrav/go-caliper/internal/testutils"
)

func newPanel(t *testing.T, callers ...ports.JudgeCaller) *MultiJudgeEvaluator {
	t.Helper()
	evaluator, err := NewMultiJudgeEvaluatorFromCallers(callers, JudgeConfig{}, MultiJudgeConfig{}, nil)
	require.NoError(t, err)
	return evaluator
}

func TestNewMultiJudgeEvaluatorRequiresTwoJudges(t *testing.T) {
	_, err := NewMultiJudgeEvaluatorFromCallers(
		[]ports.JudgeCaller{testutils.NewFixedJudge("solo", true, 0.9)},
		JudgeConfig{}, MultiJudgeConfig{}, nil)
	assert.ErrorIs(t, err, domain.ErrTooFewJudges)

	_, err = NewMultiJudgeEvaluator(nil, MultiJudgeConfig{}, nil)
	assert.ErrorIs(t, err, domain.ErrTooFewJudges)
}

func TestEvaluateMajority(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewFixedJudge("judge-a", true, 0.9),
		testutils.NewFixedJudge("judge-b", true, 0.8),
		testutils.NewFixedJudge("judge-c", false, 0.7),
	)

	result, err := evaluator.Evaluate(context.Background(), "in", "out", "criteria")
	require.NoError(t, err)

	assert.True(t, result.Consensus)
	assert.False(t, result.Tied)
	assert.Equal(t, 2, result.PositiveVotes)
	assert.Equal(t, 1, result.NegativeVotes)
	assert.Equal(t, 3, result.TotalJudges)
	assert.InDelta(t, 2.0/3.0, result.AgreementRate, 1e-9)
	assert.InDelta(t, 0.8, result.MeanConfidence, 1e-9)
	assert.Equal(t, domain.StrategyMajority, result.Strategy)
	assert.Len(t, result.Votes, 3)
}

func TestEvaluateMajorityTie(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewFixedJudge("judge-a", true, 0.9),
		testutils.NewFixedJudge("judge-b", false, 0.9),
	)

	result, err := evaluator.Evaluate(context.Background(), "in", "out", "criteria")
	require.NoError(t, err)

	assert.False(t, result.Consensus, "a tie is no consensus, not a fail verdict")
	assert.True(t, result.Tied)
	assert.Equal(t, 1, result.PositiveVotes)
	assert.Equal(t, 1, result.NegativeVotes)
}

func TestEvaluateExcludesFailedJudges(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewFixedJudge("judge-a", true, 0.9),
		testutils.NewFixedJudge("judge-b", true, 0.9),
		testutils.NewFailingJudge("judge-down", errors.New("timeout")),
	)

	result, err := evaluator.Evaluate(context.Background(), "in", "out", "criteria")
	require.NoError(t, err)

	assert.True(t, result.Consensus)
	assert.Equal(t, 2, result.PositiveVotes)
	assert.Zero(t, result.NegativeVotes)
	assert.Equal(t, 1, result.FailedJudges)
	assert.Equal(t, 3, result.TotalJudges)
	assert.Error(t, result.Votes[2].Err)
	assert.Zero(t, result.Votes[2].Weight)
}

func TestEvaluateAllJudgesFail(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewFailingJudge("a", errors.New("down")),
		testutils.NewFailingJudge("b", errors.New("down")),
	)

	_, err := evaluator.Evaluate(context.Background(), "in", "out", "criteria")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "judges failed")
}

func TestEvaluateWeightedFollowsInformedJudge(t *testing.T) {
	// judge-sharp passes outputs with "alpha"; judge-blunt passes "beta".
	sharp := testutils.NewMarkerJudge("judge-sharp", "alpha", 0.9)
	blunt := testutils.NewMarkerJudge("judge-blunt", "beta", 0.9)

	evaluator := newPanel(t, sharp, blunt)
	ctx := context.Background()

	// Calibrate sharp to J=0.7 and blunt to J=0 against their own markers.
	_, err := evaluator.Judges()[0].Calibrate(ctx, markerSet("alpha", 18, 20, 4, 20), "criteria")
	require.NoError(t, err)
	_, err = evaluator.Judges()[1].Calibrate(ctx, markerSet("beta", 10, 20, 10, 20), "criteria")
	require.NoError(t, err)

	// The output carries only beta, so blunt votes pass and sharp votes
	// fail. The weighted vote must follow sharp.
	result, err := evaluator.EvaluateWeighted(ctx, "in", "beta response", "criteria")
	require.NoError(t, err)

	assert.False(t, result.Consensus)
	assert.Equal(t, domain.StrategyWeighted, result.Strategy)
	assert.InDelta(t, 0.0, result.WeightedScore, 1e-9, "zero-signal judge gets zero weight")
	assert.InDelta(t, 1.0, result.Votes[0].Weight, 1e-9)
	assert.InDelta(t, 0.0, result.Votes[1].Weight, 1e-9)
}

func TestEvaluateWeightedFallsBackToEqualWeights(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewFixedJudge("judge-a", true, 0.9),
		testutils.NewFixedJudge("judge-b", true, 0.9),
		testutils.NewFixedJudge("judge-c", false, 0.9),
	)

	// No judge is calibrated, so all Youden weights are zero.
	result, err := evaluator.EvaluateWeighted(context.Background(), "in", "out", "criteria")
	require.NoError(t, err)

	assert.True(t, result.Consensus)
	assert.InDelta(t, 2.0/3.0, result.WeightedScore, 1e-9)
	for _, vote := range result.Votes {
		assert.InDelta(t, 1.0/3.0, vote.Weight, 1e-9)
	}
}

func TestEvaluateUnanimous(t *testing.T) {
	agreeing := newPanel(t,
		testutils.NewFixedJudge("a", true, 0.9),
		testutils.NewFixedJudge("b", true, 0.9),
	)
	result, err := agreeing.EvaluateUnanimous(context.Background(), "in", "out", "criteria")
	require.NoError(t, err)
	assert.True(t, result.Consensus)
	assert.Equal(t, domain.StrategyUnanimous, result.Strategy)

	split := newPanel(t,
		testutils.NewFixedJudge("a", true, 0.9),
		testutils.NewFixedJudge("b", true, 0.9),
		testutils.NewFixedJudge("c", false, 0.9),
	)
	result, err = split.EvaluateUnanimous(context.Background(), "in", "out", "criteria")
	require.NoError(t, err)
	assert.False(t, result.Consensus, "one dissent breaks unanimity")
}

func TestEvaluateThreshold(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewFixedJudge("a", true, 0.9),
		testutils.NewFixedJudge("b", true, 0.9),
		testutils.NewFixedJudge("c", false, 0.9),
	)
	ctx := context.Background()

	result, err := evaluator.EvaluateThreshold(ctx, "in", "out", "criteria", 0.6)
	require.NoError(t, err)
	assert.True(t, result.Consensus, "2/3 positive meets a 0.6 threshold")

	result, err = evaluator.EvaluateThreshold(ctx, "in", "out", "criteria", 0.8)
	require.NoError(t, err)
	assert.False(t, result.Consensus, "2/3 positive misses a 0.8 threshold")

	_, err = evaluator.EvaluateThreshold(ctx, "in", "out", "criteria", 1.5)
	var invalid *domain.InvalidArgumentError
	assert.ErrorAs(t, err, &invalid)
}

func TestEvaluateThresholdCountsFailedJudgeAgainstShare(t *testing.T) {
	// The share is positive votes over the full panel, so the failed
	// judge leaves 2/3 rather than 2/2.
	evaluator := newPanel(t,
		testutils.NewFixedJudge("a", true, 0.9),
		testutils.NewFixedJudge("b", true, 0.9),
		testutils.NewFailingJudge("c", errors.New("provider down")),
	)
	ctx := context.Background()

	result, err := evaluator.EvaluateThreshold(ctx, "in", "out", "criteria", 0.6)
	require.NoError(t, err)
	assert.True(t, result.Consensus)
	assert.Equal(t, 1, result.FailedJudges)

	result, err = evaluator.EvaluateThreshold(ctx, "in", "out", "criteria", 0.7)
	require.NoError(t, err)
	assert.False(t, result.Consensus, "2 of 3 judges positive misses a 0.7 threshold even with both voters agreeing")
}

func TestEvaluateBatchAggregates(t *testing.T) {
	// Both judges pass "good" outputs; the third dissents on everything.
	evaluator := newPanel(t,
		testutils.NewMarkerJudge("a", "good", 0.9),
		testutils.NewMarkerJudge("b", "good", 0.9),
		testutils.NewFixedJudge("c", false, 0.5),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "good one"},  // 2-1 pass, agreement 2/3
		{Input: "q2", Output: "bad one"},   // 0-3 fail, unanimous
		{Input: "q3", Output: "good two"},  // 2-1 pass
		{Input: "q4", Output: "awful one"}, // 0-3 fail, unanimous
	}

	batch, err := evaluator.EvaluateBatch(context.Background(), samples, "criteria")
	require.NoError(t, err)

	require.Len(t, batch.Results, 4)
	assert.InDelta(t, 0.5, batch.ConsensusRate, 1e-9)
	assert.Equal(t, 2, batch.UnanimousCount)
	assert.Equal(t, 2, batch.HighDisagreementCount, "2/3 agreement sits below the 0.7 floor")
	assert.InDelta(t, (2.0/3.0+1+2.0/3.0+1)/4, batch.AverageAgreement, 1e-9)
}

func TestEvaluateBatchIsolatesFailedSample(t *testing.T) {
	// Every judge fails on the poisoned sample; the rest of the batch
	// must still be evaluated and aggregated.
	wantErr := errors.New("provider down")
	evaluator := newPanel(t,
		testutils.NewSelectiveFailingJudge("a", "good", "poison", wantErr),
		testutils.NewSelectiveFailingJudge("b", "good", "poison", wantErr),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "good one"},
		{Input: "q2", Output: "poison pill"},
		{Input: "q3", Output: "good two"},
	}
	batch, err := evaluator.EvaluateBatch(context.Background(), samples, "criteria")
	require.NoError(t, err)

	assert.Equal(t, []int{1}, batch.FailedSamples)
	assert.True(t, batch.Partial)
	require.Len(t, batch.Results, 3)
	assert.Zero(t, batch.Results[1].TotalJudges)
	// Aggregates cover only the two surviving samples.
	assert.InDelta(t, 1.0, batch.ConsensusRate, 1e-9)
	assert.InDelta(t, 1.0, batch.AverageAgreement, 1e-9)
	assert.Equal(t, 2, batch.UnanimousCount)
}

func TestEvaluateBatchAllSamplesFail(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewFailingJudge("a", errors.New("down")),
		testutils.NewFailingJudge("b", errors.New("down")),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "first"},
		{Input: "q2", Output: "second"},
	}
	_, err := evaluator.EvaluateBatch(context.Background(), samples, "criteria")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "samples failed")
}

func TestFlagForHumanReview(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewMarkerJudge("a", "good", 0.9),
		testutils.NewMarkerJudge("b", "decent", 0.8),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "good and decent"}, // unanimous pass
		{Input: "q2", Output: "good only"},       // 1-1 tie
		{Input: "q3", Output: "neither"},         // unanimous fail
	}

	flags, err := evaluator.FlagForHumanReview(context.Background(), samples, "criteria", 0.75)
	require.NoError(t, err)

	require.Len(t, flags, 1)
	assert.Equal(t, "q2", flags[0].Sample.Input)
	assert.True(t, flags[0].Result.Tied)
	assert.Contains(t, flags[0].Reason, "split evenly")
}

func TestFlagForHumanReviewFlagsFailedSample(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewSelectiveFailingJudge("a", "good", "poison", errors.New("provider down")),
		testutils.NewSelectiveFailingJudge("b", "good", "poison", errors.New("provider down")),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "good one"},
		{Input: "q2", Output: "poison pill"},
	}
	flags, err := evaluator.FlagForHumanReview(context.Background(), samples, "criteria", 0.75)
	require.NoError(t, err)

	require.Len(t, flags, 1)
	assert.Equal(t, "q2", flags[0].Sample.Input)
	assert.Equal(t, "every judge call failed", flags[0].Reason)
}

// newCancelingJudge returns a judge whose first call cancels the context,
// then blocks until cancellation propagates, mimicking an in-flight request
// interrupted by shutdown.
func newCancelingJudge(model string, cancel context.CancelFunc) *testutils.StubJudge {
	var once sync.Once
	return &testutils.StubJudge{
		ModelID: model,
		Decide: func(ctx context.Context, _, _, _ string) (domain.Judgment, error) {
			once.Do(cancel)
			<-ctx.Done()
			return domain.Judgment{}, ctx.Err()
		},
	}
}

func TestEvaluateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evaluator := newPanel(t,
		newCancelingJudge("hang", cancel),
		testutils.NewFixedJudge("ok", true, 0.9),
	)

	_, err := evaluator.Evaluate(ctx, "in", "out", "criteria")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evaluator := newPanel(t,
		newCancelingJudge("hang", cancel),
		testutils.NewFixedJudge("ok", true, 0.9),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "first"},
		{Input: "q2", Output: "second"},
	}
	batch, err := evaluator.EvaluateBatch(ctx, samples, "criteria")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, batch.Results, "a canceled batch returns no partial results")
}

func TestInterRaterReliability(t *testing.T) {
	// Two identical judges agree perfectly on a mixed batch.
	evaluator := newPanel(t,
		testutils.NewMarkerJudge("a", "good", 0.9),
		testutils.NewMarkerJudge("b", "good", 0.9),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "good one"},
		{Input: "q2", Output: "bad one"},
		{Input: "q3", Output: "good two"},
		{Input: "q4", Output: "bad two"},
	}

	report, err := evaluator.InterRaterReliability(context.Background(), samples, "criteria")
	require.NoError(t, err)

	require.Len(t, report.Pairwise, 1)
	assert.InDelta(t, 1.0, report.Pairwise[0].Agreement, 1e-9)
	assert.InDelta(t, 1.0, report.MeanAgreement, 1e-9)
	assert.InDelta(t, 1.0, report.FleissKappa, 1e-9, "perfect agreement over mixed verdicts is kappa 1")
	assert.Equal(t, 4, report.Samples)
}

func TestInterRaterReliabilityDisagreement(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewMarkerJudge("a", "good", 0.9),
		testutils.NewMarkerJudge("b", "decent", 0.9),
	)

	samples := []domain.EvaluationSample{
		{Input: "q1", Output: "good and decent"},
		{Input: "q2", Output: "good only"},
		{Input: "q3", Output: "decent only"},
		{Input: "q4", Output: "neither"},
	}

	report, err := evaluator.InterRaterReliability(context.Background(), samples, "criteria")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.MeanAgreement, 1e-9)
	assert.Less(t, report.FleissKappa, 0.5)
}

func TestCalibrateAll(t *testing.T) {
	evaluator := newPanel(t,
		testutils.NewMarkerJudge("a", "good", 0.9),
		testutils.NewMarkerJudge("b", "good", 0.9),
	)

	err := evaluator.CalibrateAll(context.Background(), markerSet("good", 8, 10, 1, 10), "criteria")
	require.NoError(t, err)
	for _, judge := range evaluator.Judges() {
		assert.True(t, judge.Calibrated())
	}
}
