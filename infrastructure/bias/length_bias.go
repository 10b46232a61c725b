package bias

import (
	"unicode/utf8"

	"github.com/ahrav/go-caliper/internal/domain"
)

// Correlation thresholds for bias detection and strength bucketing.
const (
	// biasCorrelationThreshold is the |r| above which a presentation
	// attribute counts as a detected bias.
	biasCorrelationThreshold = 0.5

	// defaultMinSamples is the smallest sample count the analyzers will
	// draw conclusions from.
	defaultMinSamples = 10
)

// BiasStrength buckets a correlation magnitude.
type BiasStrength string

// Strength buckets, by |correlation|.
const (
	StrengthWeak       BiasStrength = "weak"        // below 0.3
	StrengthModerate   BiasStrength = "moderate"    // 0.3 to 0.5
	StrengthStrong     BiasStrength = "strong"      // 0.5 to 0.7
	StrengthVeryStrong BiasStrength = "very_strong" // 0.7 and above
)

func strengthOf(correlation float64) BiasStrength {
	abs := correlation
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 0.3:
		return StrengthWeak
	case abs < biasCorrelationThreshold:
		return StrengthModerate
	case abs < 0.7:
		return StrengthStrong
	default:
		return StrengthVeryStrong
	}
}

// ScoredOutput pairs a judged output with the score a judge assigned it.
type ScoredOutput struct {
	Output string  `json:"output"`
	Score  float64 `json:"score"`
}

// LengthDirection names which way a length bias points.
type LengthDirection string

// Length bias directions.
const (
	FavorsLonger  LengthDirection = "favors_longer"
	FavorsShorter LengthDirection = "favors_shorter"
	NoDirection   LengthDirection = "none"
)

// LengthStats summarizes the output lengths behind an analysis.
type LengthStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// LengthBiasReport is the outcome of a length bias analysis.
type LengthBiasReport struct {
	// Correlation is the Pearson correlation between output length and
	// score.
	Correlation float64 `json:"correlation"`

	// Biased is true when |Correlation| exceeds 0.5.
	Biased bool `json:"biased"`

	// Direction and Strength qualify a detected bias.
	Direction LengthDirection `json:"direction"`
	Strength  BiasStrength    `json:"strength"`

	// Lengths summarizes the analyzed output lengths.
	Lengths LengthStats `json:"lengths"`

	// Samples is the analyzed sample count.
	Samples int `json:"samples"`
}

// LengthBiasAnalyzer detects judges that reward verbosity (or terseness)
// rather than quality.
type LengthBiasAnalyzer struct {
	// MinSamples is the smallest batch the analyzer will draw
	// conclusions from; non-positive uses the default of 10.
	MinSamples int
}

func (a *LengthBiasAnalyzer) minSamples() int {
	if a.MinSamples > 0 {
		return a.MinSamples
	}
	return defaultMinSamples
}

// Analyze correlates output length with score. Fewer samples than the
// minimum yields a report with Samples set and no bias claim.
func (a *LengthBiasAnalyzer) Analyze(scored []ScoredOutput) (LengthBiasReport, error) {
	if len(scored) == 0 {
		return LengthBiasReport{}, domain.ErrNoSamples
	}

	lengths := make([]float64, len(scored))
	scores := make([]float64, len(scored))
	stats := LengthStats{Min: utf8.RuneCountInString(scored[0].Output)}
	for i, s := range scored {
		n := utf8.RuneCountInString(s.Output)
		lengths[i] = float64(n)
		scores[i] = s.Score
		if n < stats.Min {
			stats.Min = n
		}
		if n > stats.Max {
			stats.Max = n
		}
	}
	stats.Mean = domain.Mean(lengths)
	stats.StdDev = domain.StdDev(lengths)

	report := LengthBiasReport{
		Lengths:   stats,
		Samples:   len(scored),
		Direction: NoDirection,
		Strength:  StrengthWeak,
	}
	if len(scored) < a.minSamples() {
		return report, nil
	}

	report.Correlation = domain.PearsonCorrelation(lengths, scores)
	report.Strength = strengthOf(report.Correlation)
	if report.Correlation > biasCorrelationThreshold {
		report.Biased = true
		report.Direction = FavorsLonger
	} else if report.Correlation < -biasCorrelationThreshold {
		report.Biased = true
		report.Direction = FavorsShorter
	}
	return report, nil
}

// NormalizedScore records one score's length adjustment so callers can audit
// what the normalization changed.
type NormalizedScore struct {
	Original   float64 `json:"original"`
	Normalized float64 `json:"normalized"`
	Adjustment float64 `json:"adjustment"`
}

// NormalizeForLength removes the length-attributable component from each
// score using an ordinary least squares fit of score on length, clamping
// results to [0, 1]. Scores pass through unchanged (zero adjustment) when
// the batch is too small or no bias is detected.
func (a *LengthBiasAnalyzer) NormalizeForLength(scored []ScoredOutput) ([]NormalizedScore, error) {
	report, err := a.Analyze(scored)
	if err != nil {
		return nil, err
	}

	normalized := make([]NormalizedScore, len(scored))
	for i, s := range scored {
		normalized[i] = NormalizedScore{Original: s.Score, Normalized: s.Score}
	}
	if !report.Biased {
		return normalized, nil
	}

	lengths := make([]float64, len(scored))
	scores := make([]float64, len(scored))
	for i, s := range scored {
		lengths[i] = float64(utf8.RuneCountInString(s.Output))
		scores[i] = s.Score
	}

	meanLen := domain.Mean(lengths)
	meanScore := domain.Mean(scores)
	var covSum, varSum float64
	for i := range lengths {
		dl := lengths[i] - meanLen
		covSum += dl * (scores[i] - meanScore)
		varSum += dl * dl
	}
	if varSum == 0 {
		return normalized, nil
	}
	slope := covSum / varSum

	for i := range normalized {
		adjusted := domain.Clamp01(scores[i] - slope*(lengths[i]-meanLen))
		normalized[i].Normalized = adjusted
		normalized[i].Adjustment = adjusted - scores[i]
	}
	return normalized, nil
}
