package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for calibration and evaluation failures. Callers match
// these with errors.Is to branch on failure class.
var (
	// ErrNotCalibrated indicates an operation that requires calibration
	// state was invoked before Calibrate succeeded.
	ErrNotCalibrated = errors.New("judge is not calibrated")

	// ErrUninformativeJudge indicates the judge's measured error rates
	// satisfy q0+q1 ≈ 1, so its verdicts carry no signal about ground
	// truth and bias correction is mathematically undefined.
	ErrUninformativeJudge = errors.New("judge is uninformative: sensitivity + specificity equals 1")

	// ErrMissingCriteria indicates an evaluation was requested without
	// the criteria string that judges are instructed with.
	ErrMissingCriteria = errors.New("evaluation criteria must not be empty")

	// ErrTooFewJudges indicates a multi-judge evaluator was constructed
	// with fewer than two judges.
	ErrTooFewJudges = errors.New("multi-judge evaluation requires at least 2 judges")

	// ErrNoSamples indicates a batch operation received an empty sample
	// list.
	ErrNoSamples = errors.New("no samples provided")
)

// InsufficientCalibrationDataError reports that a calibration set does not
// carry enough samples of each ground-truth class. It carries both the
// requirement and the observed counts so callers can report exactly what is
// missing.
type InsufficientCalibrationDataError struct {
	RequiredPositive int
	RequiredNegative int
	ActualPositive   int
	ActualNegative   int
}

// Error implements the error interface.
func (e *InsufficientCalibrationDataError) Error() string {
	return fmt.Sprintf(
		"insufficient calibration data: need %d positive and %d negative samples, have %d positive and %d negative",
		e.RequiredPositive, e.RequiredNegative, e.ActualPositive, e.ActualNegative)
}

// InvalidArgumentError reports a caller-supplied argument outside its valid
// range.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Argument, e.Reason)
}

// JudgeCallError wraps a failure from a single judge call, identifying which
// judge model failed and for which sample index when known.
type JudgeCallError struct {
	Model       string
	SampleIndex int
	Err         error
}

// Error implements the error interface.
func (e *JudgeCallError) Error() string {
	if e.SampleIndex >= 0 {
		return fmt.Sprintf("judge %q failed on sample %d: %v", e.Model, e.SampleIndex, e.Err)
	}
	return fmt.Sprintf("judge %q failed: %v", e.Model, e.Err)
}

// Unwrap returns the underlying judge error for errors.Is/As matching.
func (e *JudgeCallError) Unwrap() error { return e.Err }
