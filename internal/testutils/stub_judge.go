// Package testutils provides deterministic test doubles for judge-backed
// components. The stubs never touch the network, so tests stay fast and
// reproducible.
package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/ahrav/go-caliper/internal/domain"
	"github.com/ahrav/go-caliper/internal/ports"
)

// StubJudge is a scriptable ports.JudgeCaller. Decide receives the call
// arguments and returns the judgment; it must be safe for concurrent use.
type StubJudge struct {
	// ModelID is returned by Model.
	ModelID string

	// Decide produces the judgment for each call.
	Decide func(ctx context.Context, input, output, criteria string) (domain.Judgment, error)

	mu    sync.Mutex
	calls int
}

var _ ports.JudgeCaller = (*StubJudge)(nil)

// CallJudge invokes Decide and counts the call.
func (s *StubJudge) CallJudge(ctx context.Context, input, output, criteria string, _ map[string]any) (domain.Judgment, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.Decide(ctx, input, output, criteria)
}

// Model returns the stub's model identifier.
func (s *StubJudge) Model() string { return s.ModelID }

// Calls returns how many times CallJudge ran.
func (s *StubJudge) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// NewMarkerJudge returns a judge that passes any output containing the
// marker string and fails the rest, always with the given confidence.
// Tests control the judge's error rates by choosing how often the marker
// agrees with ground truth.
func NewMarkerJudge(model, marker string, confidence float64) *StubJudge {
	return &StubJudge{
		ModelID: model,
		Decide: func(_ context.Context, _, output, _ string) (domain.Judgment, error) {
			pass := strings.Contains(output, marker)
			reasoning := "output lacks required marker"
			if pass {
				reasoning = "output carries required marker"
			}
			return domain.Judgment{Verdict: pass, Confidence: confidence, Reasoning: reasoning}, nil
		},
	}
}

// NewFixedJudge returns a judge that always returns the same judgment.
func NewFixedJudge(model string, verdict bool, confidence float64) *StubJudge {
	return &StubJudge{
		ModelID: model,
		Decide: func(context.Context, string, string, string) (domain.Judgment, error) {
			return domain.Judgment{Verdict: verdict, Confidence: confidence, Reasoning: "fixed verdict"}, nil
		},
	}
}

// NewFailingJudge returns a judge whose every call fails with err.
func NewFailingJudge(model string, err error) *StubJudge {
	return &StubJudge{
		ModelID: model,
		Decide: func(context.Context, string, string, string) (domain.Judgment, error) {
			return domain.Judgment{}, err
		},
	}
}

// NewSelectiveFailingJudge returns a judge that fails with err whenever the
// output contains failMarker, and otherwise behaves like a marker judge for
// passMarker.
func NewSelectiveFailingJudge(model, passMarker, failMarker string, err error) *StubJudge {
	return &StubJudge{
		ModelID: model,
		Decide: func(_ context.Context, _, output, _ string) (domain.Judgment, error) {
			if strings.Contains(output, failMarker) {
				return domain.Judgment{}, err
			}
			return domain.Judgment{
				Verdict:    strings.Contains(output, passMarker),
				Confidence: 0.9,
				Reasoning:  "marker check",
			}, nil
		},
	}
}
