package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-caliper/internal/domain"
	"github.com/ahrav/go-caliper/internal/ports"
)

// defaultJudgePrompt instructs the model to return a strict JSON verdict.
// Input, output, and criteria are injected through template fields after
// sanitization.
const defaultJudgePrompt = `You are an impartial evaluator. Judge whether the candidate output satisfies the evaluation criteria for the given input.

Evaluation criteria:
{{.Criteria}}

Input:
{{.Input}}

Candidate output:
{{.Output}}

Respond with only a JSON object in this exact format:
{"verdict": true or false, "confidence": 0.0 to 1.0, "reasoning": "brief explanation"}

The verdict must be true only if the output satisfies the criteria.`

// RubricJudgeConfig configures a RubricJudge.
type RubricJudgeConfig struct {
	// PromptTemplate is the Go template used to build the judge prompt.
	// It receives Input, Output, and Criteria fields. Empty selects the
	// default template.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template"`

	// Temperature controls judge sampling; low values keep verdicts
	// stable across repeated calls.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`

	// MaxTokens caps the judge's reply length.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=50,max=2000"`
}

// DefaultRubricJudgeConfig returns the config used when callers pass a zero
// value.
func DefaultRubricJudgeConfig() RubricJudgeConfig {
	return RubricJudgeConfig{
		Temperature: 0.1,
		MaxTokens:   500,
	}
}

// judgeReply is the schema a judge's JSON reply must satisfy.
type judgeReply struct {
	Verdict    *bool   `json:"verdict" validate:"required"`
	Confidence float64 `json:"confidence" validate:"min=0.0,max=1.0"`
	Reasoning  string  `json:"reasoning"`
}

// RubricJudge adapts an LLM client into a ports.JudgeCaller. It renders a
// sanitized prompt, sends it through the transport, and parses the JSON
// verdict out of the reply.
type RubricJudge struct {
	client    ports.LLMClient
	config    RubricJudgeConfig
	template  *template.Template
	validator *validator.Validate
}

var _ ports.JudgeCaller = (*RubricJudge)(nil)

// NewRubricJudge builds a judge over the given client. A zero-valued config
// is replaced with defaults.
func NewRubricJudge(client ports.LLMClient, config RubricJudgeConfig) (*RubricJudge, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client cannot be nil")
	}
	if config == (RubricJudgeConfig{}) {
		config = DefaultRubricJudgeConfig()
	}

	v := validator.New()
	if err := v.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid rubric judge config: %w", err)
	}

	promptText := config.PromptTemplate
	if promptText == "" {
		promptText = defaultJudgePrompt
	}
	// Template rendering keeps user content out of the prompt structure.
	tmpl, err := template.New("judgePrompt").Parse(promptText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse judge prompt template: %w", err)
	}

	return &RubricJudge{
		client:    client,
		config:    config,
		template:  tmpl,
		validator: v,
	}, nil
}

// Model returns the underlying client's model identifier.
func (rj *RubricJudge) Model() string { return rj.client.GetModel() }

// CallJudge renders the prompt, queries the model, and parses its verdict.
// Per-call options override the configured temperature and max tokens.
func (rj *RubricJudge) CallJudge(ctx context.Context, input, output, criteria string, options map[string]any) (domain.Judgment, error) {
	data := struct {
		Input    string
		Output   string
		Criteria string
	}{
		Input:    sanitizeUserContent(input),
		Output:   sanitizeUserContent(output),
		Criteria: criteria,
	}

	var prompt bytes.Buffer
	if err := rj.template.Execute(&prompt, data); err != nil {
		return domain.Judgment{}, fmt.Errorf("failed to render judge prompt: %w", err)
	}

	callOpts := map[string]any{
		"temperature": rj.config.Temperature,
		"max_tokens":  rj.config.MaxTokens,
	}
	if supportsJSONMode(rj.client.GetModel()) {
		callOpts["json_mode"] = true
	}
	for k, v := range options {
		callOpts[k] = v
	}

	response, err := rj.client.Complete(ctx, prompt.String(), callOpts)
	if err != nil {
		return domain.Judgment{}, fmt.Errorf("judge call failed: %w", err)
	}

	return rj.parseReply(response)
}

func (rj *RubricJudge) parseReply(response string) (domain.Judgment, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return domain.Judgment{}, NewProviderError(providerFromModel(rj.Model()), ErrorTypeMalformedReply, 0,
			fmt.Sprintf("no JSON object found in judge reply (%d chars)", len(response)), nil)
	}

	var reply judgeReply
	if err := json.Unmarshal([]byte(jsonStr), &reply); err != nil {
		return domain.Judgment{}, NewProviderError(providerFromModel(rj.Model()), ErrorTypeMalformedReply, 0,
			"failed to parse judge reply JSON", err)
	}
	if err := rj.validator.Struct(reply); err != nil {
		return domain.Judgment{}, NewProviderError(providerFromModel(rj.Model()), ErrorTypeMalformedReply, 0,
			"judge reply failed schema validation", err)
	}

	return domain.Judgment{
		Verdict:    *reply.Verdict,
		Confidence: reply.Confidence,
		Reasoning:  reply.Reasoning,
	}, nil
}

// sanitizeUserContent wraps user-provided content in code fences and escapes
// existing fence delimiters so content cannot break out of its designated
// prompt area.
func sanitizeUserContent(content string) string {
	content = strings.ReplaceAll(content, "```", "'''")
	return "```\n" + content + "\n```"
}

// supportsJSONMode reports whether the model is known to honor structured
// JSON output requests.
func supportsJSONMode(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "gpt")
}

// extractJSON pulls a JSON object out of a reply that may wrap it in
// markdown fences or surrounding prose. It returns the empty string when no
// balanced object is found.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+7:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx+3:]
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}
	return ""
}
