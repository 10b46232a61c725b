package domain

import "fmt"

// Judgment is a single judge's decision about one candidate output.
// Verdict is the binary pass/fail call; Confidence and Reasoning are
// advisory context produced alongside it.
type Judgment struct {
	// Verdict is true when the judge deems the output to satisfy the
	// evaluation criteria.
	Verdict bool `json:"verdict" yaml:"verdict"`

	// Confidence is the judge's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`

	// Reasoning is the judge's free-text rationale for the verdict.
	Reasoning string `json:"reasoning" yaml:"reasoning"`
}

// Validate checks the judgment's field invariants.
func (j Judgment) Validate() error {
	if j.Confidence < 0 || j.Confidence > 1 {
		return fmt.Errorf("judgment confidence %f outside [0, 1]", j.Confidence)
	}
	return nil
}

// EvaluationSample is one unlabeled input/output pair submitted for
// evaluation.
type EvaluationSample struct {
	// Input is the prompt or task the output responds to.
	Input string `json:"input" yaml:"input"`

	// Output is the candidate response to evaluate.
	Output string `json:"output" yaml:"output"`
}
