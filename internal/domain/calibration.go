// Package domain contains the plain value types and pure statistics that the
// calibration engine operates on. Types in this package carry no transport or
// framework dependencies so they can cross the public API boundary unchanged.
package domain

import (
	"math/rand"
	"time"
)

// Default minimum class counts required before a calibration set may be used
// to estimate error rates. Ten per class keeps the binomial variance of the
// sensitivity/specificity estimates from dominating downstream intervals.
const (
	DefaultMinPositive = 10
	DefaultMinNegative = 10
)

// CalibrationSample is a single labeled example used to measure a judge's
// error rates. A sample is immutable once added to a set.
type CalibrationSample struct {
	// Input is the prompt or task the output responds to.
	Input string `yaml:"input" json:"input"`

	// Output is the candidate response whose quality is labeled.
	Output string `yaml:"output" json:"output"`

	// GroundTruth is the known-correct pass/fail label for the output.
	GroundTruth bool `yaml:"ground_truth" json:"ground_truth"`

	// Context carries free-form attributes (domain, difficulty, source)
	// used by CalibrationSet.Filter.
	Context map[string]any `yaml:"context,omitempty" json:"context,omitempty"`

	// AddedAt records when the sample entered its set.
	AddedAt time.Time `yaml:"added_at" json:"added_at"`
}

// CalibrationSet is an ordered collection of labeled samples plus free-form
// metadata. It is built once per calibration exercise and typically persisted
// so calibration runs are reproducible.
//
// The set is not safe for concurrent mutation; build it fully before sharing.
// All read operations return copies, so a fully built set may be read
// concurrently.
type CalibrationSet struct {
	samples  []CalibrationSample
	metadata map[string]any
}

// NewCalibrationSet creates an empty calibration set with the given metadata.
// A nil metadata map is replaced with an empty one.
func NewCalibrationSet(metadata map[string]any) *CalibrationSet {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &CalibrationSet{metadata: metadata}
}

// Add appends a sample to the set, stamping AddedAt when unset.
// It returns the set to allow chained construction.
func (cs *CalibrationSet) Add(sample CalibrationSample) *CalibrationSet {
	if sample.AddedAt.IsZero() {
		sample.AddedAt = time.Now().UTC()
	}
	cs.samples = append(cs.samples, sample)
	return cs
}

// Len returns the total number of samples in the set.
func (cs *CalibrationSet) Len() int { return len(cs.samples) }

// Samples returns a copy of the ordered sample list.
func (cs *CalibrationSet) Samples() []CalibrationSample {
	out := make([]CalibrationSample, len(cs.samples))
	copy(out, cs.samples)
	return out
}

// Metadata returns a shallow copy of the set's metadata.
func (cs *CalibrationSet) Metadata() map[string]any {
	out := make(map[string]any, len(cs.metadata))
	for k, v := range cs.metadata {
		out[k] = v
	}
	return out
}

// PositiveSamples returns the samples labeled GroundTruth=true, in order.
func (cs *CalibrationSet) PositiveSamples() []CalibrationSample {
	return cs.filterByLabel(true)
}

// NegativeSamples returns the samples labeled GroundTruth=false, in order.
func (cs *CalibrationSet) NegativeSamples() []CalibrationSample {
	return cs.filterByLabel(false)
}

func (cs *CalibrationSet) filterByLabel(label bool) []CalibrationSample {
	var out []CalibrationSample
	for _, s := range cs.samples {
		if s.GroundTruth == label {
			out = append(out, s)
		}
	}
	return out
}

// M1 returns the count of positive (GroundTruth=true) samples.
func (cs *CalibrationSet) M1() int {
	n := 0
	for _, s := range cs.samples {
		if s.GroundTruth {
			n++
		}
	}
	return n
}

// M0 returns the count of negative (GroundTruth=false) samples.
func (cs *CalibrationSet) M0() int { return len(cs.samples) - cs.M1() }

// Valid reports whether the set carries at least minPositive positive and
// minNegative negative samples. Non-positive minimums fall back to the
// package defaults.
func (cs *CalibrationSet) Valid(minPositive, minNegative int) bool {
	return cs.Validate(minPositive, minNegative) == nil
}

// Validate returns an *InsufficientCalibrationDataError when the set does not
// meet the minimum class counts, and nil otherwise.
func (cs *CalibrationSet) Validate(minPositive, minNegative int) error {
	if minPositive <= 0 {
		minPositive = DefaultMinPositive
	}
	if minNegative <= 0 {
		minNegative = DefaultMinNegative
	}

	m1, m0 := cs.M1(), cs.M0()
	if m1 < minPositive || m0 < minNegative {
		return &InsufficientCalibrationDataError{
			RequiredPositive: minPositive,
			RequiredNegative: minNegative,
			ActualPositive:   m1,
			ActualNegative:   m0,
		}
	}
	return nil
}

// Split partitions the set into train/test subsets at the given ratio using
// a seeded shuffle. The same seed always yields the identical partition,
// which keeps calibration experiments reproducible.
func (cs *CalibrationSet) Split(ratio float64, seed int64) (train, test *CalibrationSet, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, &InvalidArgumentError{Argument: "ratio", Reason: "must be in (0, 1)"}
	}

	shuffled := cs.Samples()
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 - reproducibility matters more than entropy here
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(float64(len(shuffled))*ratio + 0.5)
	if cut > len(shuffled) {
		cut = len(shuffled)
	}

	train = NewCalibrationSet(map[string]any{"split": "train", "split_ratio": ratio})
	test = NewCalibrationSet(map[string]any{"split": "test", "split_ratio": ratio})
	train.samples = append(train.samples, shuffled[:cut]...)
	test.samples = append(test.samples, shuffled[cut:]...)
	return train, test, nil
}

// StratifiedSplit partitions each ground-truth class independently at the
// same ratio, so the train/test positive:negative balance tracks the source
// set. Both partitions preserve the source balance within ±0.5 of its
// positive:negative ratio.
func (cs *CalibrationSet) StratifiedSplit(ratio float64, seed int64) (train, test *CalibrationSet, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, &InvalidArgumentError{Argument: "ratio", Reason: "must be in (0, 1)"}
	}

	rng := rand.New(rand.NewSource(seed)) // #nosec G404 - reproducibility matters more than entropy here

	positives := cs.PositiveSamples()
	negatives := cs.NegativeSamples()
	rng.Shuffle(len(positives), func(i, j int) { positives[i], positives[j] = positives[j], positives[i] })
	rng.Shuffle(len(negatives), func(i, j int) { negatives[i], negatives[j] = negatives[j], negatives[i] })

	posCut := int(float64(len(positives))*ratio + 0.5)
	negCut := int(float64(len(negatives))*ratio + 0.5)

	train = NewCalibrationSet(map[string]any{"split": "train", "split_ratio": ratio, "stratified": true})
	test = NewCalibrationSet(map[string]any{"split": "test", "split_ratio": ratio, "stratified": true})
	train.samples = append(train.samples, positives[:posCut]...)
	train.samples = append(train.samples, negatives[:negCut]...)
	test.samples = append(test.samples, positives[posCut:]...)
	test.samples = append(test.samples, negatives[negCut:]...)
	return train, test, nil
}

// Filter returns a new set containing only the samples whose Context matches
// every key/value pair in matches. The new set inherits the source metadata.
func (cs *CalibrationSet) Filter(matches map[string]any) *CalibrationSet {
	filtered := NewCalibrationSet(cs.Metadata())
	for _, s := range cs.samples {
		if contextMatches(s.Context, matches) {
			filtered.samples = append(filtered.samples, s)
		}
	}
	return filtered
}

func contextMatches(ctx map[string]any, matches map[string]any) bool {
	for k, want := range matches {
		got, ok := ctx[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// SetStatistics summarizes the composition of a calibration set.
type SetStatistics struct {
	// Total is the full sample count.
	Total int `json:"total"`

	// Positive and Negative are the per-class counts.
	Positive int `json:"positive"`
	Negative int `json:"negative"`

	// PositiveRatio and NegativeRatio are the class fractions of the total.
	PositiveRatio float64 `json:"positive_ratio"`
	NegativeRatio float64 `json:"negative_ratio"`

	// BalanceRatio is positive/negative; +Inf when there are no negatives
	// and positives exist, 0 when the set is empty.
	BalanceRatio float64 `json:"balance_ratio"`
}

// Statistics reports counts, class ratios, and the positive:negative balance
// of the set.
func (cs *CalibrationSet) Statistics() SetStatistics {
	stats := SetStatistics{
		Total:    len(cs.samples),
		Positive: cs.M1(),
	}
	stats.Negative = stats.Total - stats.Positive

	if stats.Total > 0 {
		stats.PositiveRatio = float64(stats.Positive) / float64(stats.Total)
		stats.NegativeRatio = float64(stats.Negative) / float64(stats.Total)
	}
	if stats.Negative > 0 {
		stats.BalanceRatio = float64(stats.Positive) / float64(stats.Negative)
	} else if stats.Positive > 0 {
		stats.BalanceRatio = float64(stats.Positive)
	}
	return stats
}

// MergeCalibrationSets concatenates the samples of all given sets, in order,
// and stamps merge provenance (merged_from count and merged_at timestamp)
// into the result's metadata. Source sets are never mutated.
func MergeCalibrationSets(sets ...*CalibrationSet) *CalibrationSet {
	merged := NewCalibrationSet(map[string]any{
		"merged_from": len(sets),
		"merged_at":   time.Now().UTC(),
	})
	for _, set := range sets {
		if set == nil {
			continue
		}
		merged.samples = append(merged.samples, set.samples...)
	}
	return merged
}
