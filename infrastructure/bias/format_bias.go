package bias

import (
	"regexp"
	"strings"

	"github.com/ahrav/go-caliper/internal/domain"
)

// FormatFeature names a binary presentation attribute of an output.
type FormatFeature string

// Detected presentation features.
const (
	FeatureMarkdownHeaders FormatFeature = "markdown_headers"
	FeatureBulletLists     FormatFeature = "bullet_lists"
	FeatureNumberedLists   FormatFeature = "numbered_lists"
	FeatureCodeBlocks      FormatFeature = "code_blocks"
	FeatureBoldText        FormatFeature = "bold_text"
	FeatureLinks           FormatFeature = "links"
)

var (
	headerPattern   = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	bulletPattern   = regexp.MustCompile(`(?m)^\s*[-*+]\s+\S`)
	numberedPattern = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	boldPattern     = regexp.MustCompile(`\*\*[^*]+\*\*|__[^_]+__`)
	linkPattern     = regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`)
)

// formatDetectors maps each feature to its presence check, in report order.
var formatDetectors = []struct {
	feature FormatFeature
	detect  func(string) bool
}{
	{FeatureMarkdownHeaders, func(s string) bool { return headerPattern.MatchString(s) }},
	{FeatureBulletLists, func(s string) bool { return bulletPattern.MatchString(s) }},
	{FeatureNumberedLists, func(s string) bool { return numberedPattern.MatchString(s) }},
	{FeatureCodeBlocks, func(s string) bool { return strings.Contains(s, "```") }},
	{FeatureBoldText, func(s string) bool { return boldPattern.MatchString(s) }},
	{FeatureLinks, func(s string) bool { return linkPattern.MatchString(s) }},
}

// FeatureCorrelation reports one feature's relationship with scores.
type FeatureCorrelation struct {
	// Feature is the presentation attribute analyzed.
	Feature FormatFeature `json:"feature"`

	// Correlation is the point-biserial correlation between feature
	// presence and score.
	Correlation float64 `json:"correlation"`

	// Frequency is the fraction of outputs carrying the feature.
	Frequency float64 `json:"frequency"`

	// Significant is true when |Correlation| exceeds 0.5.
	Significant bool `json:"significant"`
}

// FormatBiasReport is the outcome of a format bias analysis.
type FormatBiasReport struct {
	// Features holds one entry per detected attribute, in fixed order.
	Features []FeatureCorrelation `json:"features"`

	// Significant lists the features whose correlation crossed the
	// threshold; SignificantCount is its length.
	Significant      []FormatFeature `json:"significant"`
	SignificantCount int             `json:"significant_count"`

	// Samples is the analyzed sample count.
	Samples int `json:"samples"`
}

// FormatBiasAnalyzer detects judges that reward presentation features such
// as markdown structure instead of content quality.
type FormatBiasAnalyzer struct {
	// MinSamples is the smallest batch the analyzer will draw
	// conclusions from; non-positive uses the default of 10.
	MinSamples int
}

func (a *FormatBiasAnalyzer) minSamples() int {
	if a.MinSamples > 0 {
		return a.MinSamples
	}
	return defaultMinSamples
}

// Analyze correlates each presentation feature's presence with score.
// Correlation of a feature that is uniformly present or absent is zero.
func (a *FormatBiasAnalyzer) Analyze(scored []ScoredOutput) (FormatBiasReport, error) {
	if len(scored) == 0 {
		return FormatBiasReport{}, domain.ErrNoSamples
	}

	scores := make([]float64, len(scored))
	for i, s := range scored {
		scores[i] = s.Score
	}

	report := FormatBiasReport{Samples: len(scored)}
	tooFew := len(scored) < a.minSamples()

	for _, detector := range formatDetectors {
		presence := make([]float64, len(scored))
		present := 0
		for i, s := range scored {
			if detector.detect(s.Output) {
				presence[i] = 1
				present++
			}
		}

		fc := FeatureCorrelation{
			Feature:   detector.feature,
			Frequency: float64(present) / float64(len(scored)),
		}
		if !tooFew {
			// Point-biserial correlation is Pearson over a binary
			// indicator.
			fc.Correlation = domain.PearsonCorrelation(presence, scores)
			if fc.Correlation > biasCorrelationThreshold || fc.Correlation < -biasCorrelationThreshold {
				fc.Significant = true
				report.Significant = append(report.Significant, detector.feature)
			}
		}
		report.Features = append(report.Features, fc)
	}
	report.SignificantCount = len(report.Significant)
	return report, nil
}
