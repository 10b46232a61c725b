package domain

import "time"

// CalibrationState is an immutable snapshot of a judge's measured error
// rates. It is produced once by a calibration run and shared read-only
// afterwards; re-calibration replaces the whole value rather than mutating
// it.
type CalibrationState struct {
	// Sensitivity (q1) is the probability the judge passes a genuinely
	// good output: TruePositives / M1.
	Sensitivity float64 `json:"sensitivity" yaml:"sensitivity"`

	// Specificity (q0) is the probability the judge fails a genuinely
	// bad output: TrueNegatives / M0.
	Specificity float64 `json:"specificity" yaml:"specificity"`

	// CalibratedAt records when the calibration run completed.
	CalibratedAt time.Time `json:"calibrated_at" yaml:"calibrated_at"`

	// Criteria is the evaluation criteria the judge was calibrated
	// against. Error rates are only meaningful for the same criteria.
	Criteria string `json:"criteria" yaml:"criteria"`

	// M1 and M0 are the positive and negative sample counts the rates
	// were estimated from, after excluding failed judge calls.
	M1 int `json:"m1" yaml:"m1"`
	M0 int `json:"m0" yaml:"m0"`

	// TruePositives and TrueNegatives are the raw correct-call counts
	// behind Sensitivity and Specificity.
	TruePositives int `json:"true_positives" yaml:"true_positives"`
	TrueNegatives int `json:"true_negatives" yaml:"true_negatives"`

	// FailedSamples counts calibration samples whose judge call failed
	// after transport retries and were excluded from the estimates.
	FailedSamples int `json:"failed_samples" yaml:"failed_samples"`
}

// BetterThanRandom reports whether the judge carries any signal at all:
// sensitivity + specificity > 1. A coin-flip judge sits exactly at 1.
func (s CalibrationState) BetterThanRandom() bool {
	return s.Sensitivity+s.Specificity > 1
}

// YoudenJ returns Youden's J statistic, sensitivity + specificity - 1,
// floored at zero. It is the judge's informedness and serves as its weight
// in weighted consensus.
func (s CalibrationState) YoudenJ() float64 {
	j := s.Sensitivity + s.Specificity - 1
	if j < 0 {
		return 0
	}
	return j
}

// Informative reports whether bias correction is defined for this state,
// i.e. |sensitivity + specificity - 1| is not vanishingly small.
func (s CalibrationState) Informative() bool {
	d := s.Sensitivity + s.Specificity - 1
	if d < 0 {
		d = -d
	}
	return d >= informativeEpsilon
}

// informativeEpsilon is the threshold below which q0+q1-1 is treated as
// zero, making the Rogan-Gladen denominator undefined.
const informativeEpsilon = 1e-9
