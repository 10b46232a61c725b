package domain

// IndividualResult is the outcome of judging one evaluation sample.
// Err is non-nil when the judge call failed; the sample is then excluded
// from aggregate accuracy but still appears in the batch result.
type IndividualResult struct {
	Sample   EvaluationSample `json:"sample"`
	Judgment Judgment         `json:"judgment"`
	Err      error            `json:"-"`
}

// Failed reports whether the judge call behind this result errored.
func (r IndividualResult) Failed() bool { return r.Err != nil }

// ConfidenceInterval is a bias-corrected accuracy estimate with delta-method
// uncertainty that accounts for both the finite test set and the finite
// calibration set.
type ConfidenceInterval struct {
	// PointEstimate is the Rogan-Gladen corrected accuracy, clamped to
	// [0, 1].
	PointEstimate float64 `json:"point_estimate"`

	// Lower and Upper are the clamped interval bounds.
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`

	// ConfidenceLevel is 1 - alpha.
	ConfidenceLevel float64 `json:"confidence_level"`

	// StandardError is the combined delta-method standard error.
	StandardError float64 `json:"standard_error"`

	// TestVariance and CalibrationVariance are the two additive variance
	// components before the square root.
	TestVariance        float64 `json:"test_variance"`
	CalibrationVariance float64 `json:"calibration_variance"`

	// TestN, M1, and M0 record the sample sizes behind each component.
	TestN int `json:"test_n"`
	M1    int `json:"m1"`
	M0    int `json:"m0"`
}

// Width returns Upper - Lower.
func (ci ConfidenceInterval) Width() float64 { return ci.Upper - ci.Lower }

// BatchResult aggregates a batch evaluation by a single calibrated judge.
type BatchResult struct {
	// RawAccuracy is the observed pass rate over successfully judged
	// samples.
	RawAccuracy float64 `json:"raw_accuracy"`

	// BiasCorrectedAccuracy is the Rogan-Gladen estimate of the true
	// pass rate.
	BiasCorrectedAccuracy float64 `json:"bias_corrected_accuracy"`

	// Interval is the delta-method confidence interval around the
	// corrected estimate.
	Interval ConfidenceInterval `json:"confidence_interval"`

	// PassedCount and TotalCount describe the successfully judged
	// samples; ErrorCount the failed judge calls.
	PassedCount int `json:"passed_count"`
	TotalCount  int `json:"total_count"`
	ErrorCount  int `json:"error_count"`

	// Partial is true when at least one judge call failed.
	Partial bool `json:"partial"`

	// Individual holds per-sample results in input order.
	Individual []IndividualResult `json:"individual"`

	// Calibration is the state the correction was computed under.
	Calibration CalibrationState `json:"calibration"`
}

// JudgeVote records one judge's contribution to a consensus decision.
type JudgeVote struct {
	// Model identifies the judge.
	Model string `json:"model"`

	// Judgment is the judge's decision; zero-valued when Err is set.
	Judgment Judgment `json:"judgment"`

	// Weight is the normalized consensus weight applied to this vote.
	// It is 0 for failed judges and for unweighted strategies it is the
	// equal share.
	Weight float64 `json:"weight"`

	// Err is non-nil when the judge call failed; the vote is then
	// excluded from tallies.
	Err error `json:"-"`
}

// ConsensusStrategy names the rule used to combine judge votes.
type ConsensusStrategy string

// Supported consensus strategies.
const (
	StrategyMajority  ConsensusStrategy = "majority"
	StrategyWeighted  ConsensusStrategy = "weighted"
	StrategyUnanimous ConsensusStrategy = "unanimous"
	StrategyThreshold ConsensusStrategy = "threshold"
)

// ConsensusResult is the combined decision of a judge panel on one sample.
type ConsensusResult struct {
	// Consensus is the panel's verdict under the chosen strategy.
	Consensus bool `json:"consensus"`

	// Tied is true when a majority vote split evenly. Consensus is
	// false in that case; callers should treat tied results as
	// undecided rather than as a fail verdict.
	Tied bool `json:"tied"`

	// AgreementRate is the fraction of successful judges that voted
	// with the plurality verdict.
	AgreementRate float64 `json:"agreement_rate"`

	// PositiveVotes, NegativeVotes, and TotalJudges tally the panel.
	// TotalJudges counts every judge asked, including failed ones.
	PositiveVotes int `json:"positive_votes"`
	NegativeVotes int `json:"negative_votes"`
	TotalJudges   int `json:"total_judges"`

	// FailedJudges counts judges whose call errored and were excluded.
	FailedJudges int `json:"failed_judges"`

	// WeightedScore is the weight-summed positive vote share for the
	// weighted strategy, zero otherwise.
	WeightedScore float64 `json:"weighted_score,omitempty"`

	// MeanConfidence averages the confidence of successful judges.
	MeanConfidence float64 `json:"mean_confidence"`

	// Votes holds each judge's individual contribution.
	Votes []JudgeVote `json:"votes"`

	// Strategy names the combination rule that produced this result.
	Strategy ConsensusStrategy `json:"strategy"`
}

// Unanimous reports whether every successful judge voted the same way.
func (r ConsensusResult) Unanimous() bool {
	voted := r.PositiveVotes + r.NegativeVotes
	return voted > 0 && (r.PositiveVotes == voted || r.NegativeVotes == voted)
}

// ConsensusBatchResult aggregates panel decisions over a sample batch.
type ConsensusBatchResult struct {
	// Results holds per-sample consensus outcomes in input order. Entries
	// for failed samples are zero-valued; FailedSamples lists their
	// indices.
	Results []ConsensusResult `json:"results"`

	// ConsensusRate is the fraction of samples with a positive
	// consensus verdict.
	ConsensusRate float64 `json:"consensus_rate"`

	// AverageAgreement is the mean per-sample agreement rate.
	AverageAgreement float64 `json:"average_agreement"`

	// HighDisagreementCount counts samples whose agreement fell below
	// the evaluator's agreement floor.
	HighDisagreementCount int `json:"high_disagreement_count"`

	// UnanimousCount counts samples every successful judge agreed on.
	UnanimousCount int `json:"unanimous_count"`

	// FailedSamples lists indices of samples where every judge call
	// failed; they are excluded from the aggregates above. Partial is
	// true when any sample failed.
	FailedSamples []int `json:"failed_samples,omitempty"`
	Partial       bool  `json:"partial"`
}

// ReviewFlag marks one sample as needing human review, with the consensus
// outcome that triggered the flag and a human-readable reason.
type ReviewFlag struct {
	Sample EvaluationSample `json:"sample"`
	Result ConsensusResult  `json:"result"`
	Reason string           `json:"reason"`
}

// PairwiseAgreement is the observed agreement rate between one pair of
// judges over a sample batch.
type PairwiseAgreement struct {
	JudgeA    string  `json:"judge_a"`
	JudgeB    string  `json:"judge_b"`
	Agreement float64 `json:"agreement"`
}

// ReliabilityReport summarizes inter-rater reliability for a judge panel.
type ReliabilityReport struct {
	// Pairwise holds per-pair agreement rates.
	Pairwise []PairwiseAgreement `json:"pairwise"`

	// MeanAgreement, MinAgreement, and MaxAgreement summarize Pairwise.
	MeanAgreement float64 `json:"mean_agreement"`
	MinAgreement  float64 `json:"min_agreement"`
	MaxAgreement  float64 `json:"max_agreement"`

	// FleissKappa is the chance-corrected agreement across the panel.
	FleissKappa float64 `json:"fleiss_kappa"`

	// Samples is the number of samples every judge voted on.
	Samples int `json:"samples"`
}
