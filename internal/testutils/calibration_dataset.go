package testutils

import (
	"fmt"
	"math/rand"

	"github.com/ahrav/go-caliper/internal/domain"
)

// Question templates for synthetic calibration samples. Each pairs a prompt
// with a correct answer and a plausible wrong one.
var sampleTemplates = []struct {
	input string
	good  string
	bad   string
}{
	{
		input: "What is the capital of France?",
		good:  "The capital of France is Paris.",
		bad:   "The capital of France is Lyon.",
	},
	{
		input: "Explain what a goroutine is.",
		good:  "A goroutine is a lightweight thread of execution managed by the Go runtime.",
		bad:   "A goroutine is a compiler directive that inlines function calls.",
	},
	{
		input: "What does HTTP status 404 mean?",
		good:  "Status 404 means the requested resource was not found on the server.",
		bad:   "Status 404 means the server encountered an internal error.",
	},
	{
		input: "Summarize the purpose of a mutex.",
		good:  "A mutex serializes access to shared state so only one goroutine touches it at a time.",
		bad:   "A mutex speeds up concurrent reads by caching shared state per goroutine.",
	},
	{
		input: "What is the boiling point of water at sea level?",
		good:  "Water boils at 100 degrees Celsius at sea level.",
		bad:   "Water boils at 90 degrees Celsius at sea level.",
	},
	{
		input: "Name the largest planet in the solar system.",
		good:  "Jupiter is the largest planet in the solar system.",
		bad:   "Saturn is the largest planet in the solar system.",
	},
	{
		input: "What does SQL stand for?",
		good:  "SQL stands for Structured Query Language.",
		bad:   "SQL stands for Sequential Query Logic.",
	},
	{
		input: "How many bits are in a byte?",
		good:  "A byte contains 8 bits.",
		bad:   "A byte contains 16 bits.",
	},
}

// GenerateSampleCalibrationSet builds a synthetic labeled calibration set of
// the given size. positiveRatio controls the ground-truth pass fraction and
// is clamped to [0, 1]; the same seed reproduces the same set.
func GenerateSampleCalibrationSet(size int, positiveRatio float64, seed int64) *domain.CalibrationSet {
	if positiveRatio < 0 {
		positiveRatio = 0
	}
	if positiveRatio > 1 {
		positiveRatio = 1
	}

	rng := rand.New(rand.NewSource(seed))
	set := domain.NewCalibrationSet(map[string]any{
		"source":         "synthetic",
		"generator":      "go-caliper testutils",
		"positive_ratio": fmt.Sprintf("%.2f", positiveRatio),
	})

	positives := int(float64(size)*positiveRatio + 0.5)
	for i := 0; i < size; i++ {
		template := sampleTemplates[rng.Intn(len(sampleTemplates))]
		sample := domain.CalibrationSample{
			Input:       fmt.Sprintf("[q%04d] %s", i, template.input),
			GroundTruth: i < positives,
			Context:     map[string]any{"source": "synthetic"},
		}
		if sample.GroundTruth {
			sample.Output = template.good
		} else {
			sample.Output = template.bad
		}
		set.Add(sample)
	}
	return set
}
