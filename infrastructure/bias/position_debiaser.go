// Package bias provides analyzers and mitigations for systematic judge
// errors that are unrelated to output quality: position preference in
// pairwise comparisons, length and format preferences in scoring, and
// verdict instability across repeated judgments.
package bias

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-caliper/internal/domain"
	"github.com/ahrav/go-caliper/internal/ports"
)

// Candidate identifies a side of a pairwise comparison.
type Candidate string

// Comparison outcomes.
const (
	CandidateA Candidate = "a"
	CandidateB Candidate = "b"
	NoWinner   Candidate = "tie"
)

// ComparisonResult is the position-debiased outcome of one pairwise
// comparison. Forward judged A presented first; Reverse judged B presented
// first. Both raw judgments are retained for auditing.
type ComparisonResult struct {
	// Winner is the debiased decision.
	Winner Candidate `json:"winner"`

	// PositionBias is true when the two presentation orders disagreed,
	// i.e. the judge preferred whichever candidate it saw in the same
	// slot both times.
	PositionBias bool `json:"position_bias"`

	// Forward and Reverse are the raw order-dependent judgments. In
	// each, Verdict=true means the first-presented candidate won.
	Forward domain.Judgment `json:"forward"`
	Reverse domain.Judgment `json:"reverse"`
}

// RankingResult aggregates round-robin pairwise comparisons over a
// candidate list.
type RankingResult struct {
	// WinCounts holds per-candidate win totals, indexed like the input.
	WinCounts []int `json:"win_counts"`

	// Order lists candidate indices from most to fewest wins.
	Order []int `json:"order"`

	// PositionBiasCount counts comparisons where the presentation
	// orders disagreed; TotalComparisons counts the comparisons that
	// completed.
	PositionBiasCount int `json:"position_bias_count"`
	TotalComparisons  int `json:"total_comparisons"`

	// FailedComparisons counts pairs whose judge calls failed; those
	// pairs award no wins. Partial is true when any comparison failed.
	FailedComparisons int  `json:"failed_comparisons"`
	Partial           bool `json:"partial"`
}

// PositionBiasRate returns the fraction of comparisons that exhibited
// position bias.
func (r RankingResult) PositionBiasRate() float64 {
	if r.TotalComparisons == 0 {
		return 0
	}
	return float64(r.PositionBiasCount) / float64(r.TotalComparisons)
}

// PositionDebiaser neutralizes presentation-order preference by judging
// every comparison in both orders. Consistent orders decide outright;
// inconsistent orders fall back to the more confident judgment, then to a
// tie.
type PositionDebiaser struct {
	caller ports.JudgeCaller
	tracer trace.Tracer
}

// NewPositionDebiaser builds a debiaser over caller.
func NewPositionDebiaser(caller ports.JudgeCaller) (*PositionDebiaser, error) {
	if caller == nil {
		return nil, fmt.Errorf("judge caller cannot be nil")
	}
	return &PositionDebiaser{
		caller: caller,
		tracer: otel.Tracer("caliper/bias"),
	}, nil
}

// comparisonOutput formats a pairwise presentation. Verdict=true from the
// judge means the first candidate is better.
func comparisonOutput(first, second string) string {
	return fmt.Sprintf("Candidate 1:\n%s\n\nCandidate 2:\n%s\n\nIs Candidate 1 better than Candidate 2?", first, second)
}

// Compare judges candidates a and b in both presentation orders
// concurrently and combines the results into an order-independent decision.
func (pd *PositionDebiaser) Compare(ctx context.Context, input, a, b, criteria string) (ComparisonResult, error) {
	if criteria == "" {
		return ComparisonResult{}, domain.ErrMissingCriteria
	}

	ctx, span := pd.tracer.Start(ctx, "position_debiaser.compare")
	defer span.End()

	var forward, reverse domain.Judgment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		forward, err = pd.caller.CallJudge(gctx, input, comparisonOutput(a, b), criteria, nil)
		if err != nil {
			return fmt.Errorf("forward comparison failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		reverse, err = pd.caller.CallJudge(gctx, input, comparisonOutput(b, a), criteria, nil)
		if err != nil {
			return fmt.Errorf("reverse comparison failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "comparison failed")
		return ComparisonResult{}, err
	}

	result := ComparisonResult{Forward: forward, Reverse: reverse}
	switch {
	case forward.Verdict && !reverse.Verdict:
		// A won with either presentation order.
		result.Winner = CandidateA
	case !forward.Verdict && reverse.Verdict:
		result.Winner = CandidateB
	default:
		// The judge preferred a slot, not a candidate.
		result.PositionBias = true
		switch {
		case forward.Confidence > reverse.Confidence:
			result.Winner = winnerOf(forward.Verdict, CandidateA, CandidateB)
		case reverse.Confidence > forward.Confidence:
			result.Winner = winnerOf(reverse.Verdict, CandidateB, CandidateA)
		default:
			result.Winner = NoWinner
		}
	}

	span.SetAttributes(
		attribute.String("comparison.winner", string(result.Winner)),
		attribute.Bool("comparison.position_bias", result.PositionBias),
	)
	return result, nil
}

func winnerOf(firstWon bool, first, second Candidate) Candidate {
	if firstWon {
		return first
	}
	return second
}

// Rank compares every unique candidate pair in both orders and orders
// candidates by win count. Ties in the win count keep input order. A failed
// comparison is counted and skipped rather than aborting the remaining
// pairs; ranking errors only when every comparison fails or the context is
// canceled.
func (pd *PositionDebiaser) Rank(ctx context.Context, input string, candidates []string, criteria string) (RankingResult, error) {
	if len(candidates) < 2 {
		return RankingResult{}, &domain.InvalidArgumentError{Argument: "candidates", Reason: "ranking requires at least 2 candidates"}
	}

	ctx, span := pd.tracer.Start(ctx, "position_debiaser.rank",
		trace.WithAttributes(attribute.Int("ranking.candidates", len(candidates))))
	defer span.End()

	result := RankingResult{WinCounts: make([]int, len(candidates))}
	var lastErr error
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			comparison, err := pd.Compare(ctx, input, candidates[i], candidates[j], criteria)
			if err != nil {
				if ctx.Err() != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "ranking canceled")
					return RankingResult{}, fmt.Errorf("comparison %d vs %d: %w", i, j, err)
				}
				result.FailedComparisons++
				lastErr = err
				continue
			}
			result.TotalComparisons++
			if comparison.PositionBias {
				result.PositionBiasCount++
			}
			switch comparison.Winner {
			case CandidateA:
				result.WinCounts[i]++
			case CandidateB:
				result.WinCounts[j]++
			}
		}
	}
	if result.TotalComparisons == 0 {
		err := fmt.Errorf("all %d pairwise comparisons failed: %w", result.FailedComparisons, lastErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no usable comparisons")
		return RankingResult{}, err
	}
	result.Partial = result.FailedComparisons > 0

	result.Order = make([]int, len(candidates))
	for i := range result.Order {
		result.Order[i] = i
	}
	// Stable insertion keeps input order among equal win counts.
	for i := 1; i < len(result.Order); i++ {
		for k := i; k > 0 && result.WinCounts[result.Order[k]] > result.WinCounts[result.Order[k-1]]; k-- {
			result.Order[k], result.Order[k-1] = result.Order[k-1], result.Order[k]
		}
	}

	span.SetAttributes(
		attribute.Int("ranking.position_bias_count", result.PositionBiasCount),
		attribute.Int("ranking.failed_comparisons", result.FailedComparisons),
	)
	return result, nil
}
