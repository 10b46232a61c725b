// Command generate_calibration_dataset writes a synthetic labeled
// calibration set for judge calibration testing and local development.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ahrav/go-caliper/internal/testutils"
)

func main() {
	var (
		size          = flag.Int("size", 200, "Number of calibration samples to generate")
		positiveRatio = flag.Float64("positive-ratio", 0.5, "Fraction of samples with a passing ground truth")
		seed          = flag.Int64("seed", time.Now().UnixNano(), "Random seed; fixed seeds reproduce the same set")
		outputPath    = flag.String("output", "testdata/calibration/sample_calibration_set.yaml", "Output file path")
	)
	flag.Parse()

	set := testutils.GenerateSampleCalibrationSet(*size, *positiveRatio, *seed)
	if err := set.SaveFile(*outputPath); err != nil {
		log.Fatalf("Failed to save calibration set: %v", err)
	}

	stats := set.Statistics()
	fmt.Printf("Generated calibration set:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Total samples: %d\n", stats.Total)
	fmt.Printf("- Positive: %d (%.1f%%)\n", stats.Positive, stats.PositiveRatio*100)
	fmt.Printf("- Negative: %d (%.1f%%)\n", stats.Negative, stats.NegativeRatio*100)
	fmt.Printf("- Balance ratio: %.2f\n", stats.BalanceRatio)
	fmt.Printf("- Seed: %d\n", *seed)
	fmt.Printf("\nNOTE: This is a synthetic dataset for development and testing. Production\n")
	fmt.Printf("calibration requires real judged outputs with verified ground-truth labels.\n")
}
