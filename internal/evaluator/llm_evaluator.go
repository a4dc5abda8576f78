package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/llm"
	"github.com/abhisek/tutorbot/internal/questiongen"
)

// The score is deliberately not range constrained here: an out-of-range
// score must reach the orchestrator so it can be rejected and retried.
var EvaluationSchema = &llm.Schema{
	Name:        "answer-evaluation",
	Description: "A grade for a learner's free-form answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        "number",
				"description": "0 to 100. 100 covers every key point correctly.",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "Two or three sentences for the learner: what was right, what was missing",
			},
			"confidence": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     1,
				"description": "How sure you are of the score, 0 to 1",
			},
		},
		"required":             []any{"score", "feedback", "confidence"},
		"additionalProperties": false,
	},
}

const systemPrompt = `You grade a learner's answer to a lesson question.

Rules:
- Judge meaning, not wording. Accept paraphrases allowed by the criteria.
- Award credit in proportion to the key points the answer covers correctly.
- An answer that contradicts the reference answer earns little credit even if it mentions key words.
- An empty, off-topic or "I don't know" answer scores 0.
- Feedback addresses the learner directly and names any missing key point.
- Lower your confidence when the answer is ambiguous or the rubric does not settle it.`

// Config controls the LLMEvaluator.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns evaluation defaults. Grading wants low variance.
func DefaultConfig() Config {
	return Config{MaxTokens: 512, Temperature: 0.1}
}

// LLMEvaluator grades answers with an LLM provider.
type LLMEvaluator struct {
	provider llm.Provider
	config   Config
	log      *zap.Logger
}

// New creates an LLMEvaluator.
func New(provider llm.Provider, cfg Config, log *zap.Logger) *LLMEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMEvaluator{provider: provider, config: cfg, log: log}
}

type evaluationOutput struct {
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback"`
	Confidence float64 `json:"confidence"`
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, answer string, rubric questiongen.Rubric) (Evaluation, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeEvaluate)

	resp, err := e.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildUserMessage(answer, rubric)}},
		Schema:      EvaluationSchema,
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("LLM evaluation failed: %w", err)
	}

	var out evaluationOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return Evaluation{}, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	ev := Evaluation{Score: out.Score, Feedback: strings.TrimSpace(out.Feedback), Confidence: out.Confidence}
	if ev.LowConfidence() {
		e.log.Info("low confidence evaluation",
			zap.Float64("score", ev.Score),
			zap.Float64("confidence", ev.Confidence),
			zap.String("source_passage_id", rubric.SourcePassageID),
		)
	}
	return ev, nil
}

func buildUserMessage(answer string, r questiongen.Rubric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", r.Question)
	b.WriteString("Key points:\n")
	for i, kp := range r.KeyPoints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, kp)
	}
	if r.Criteria != "" {
		fmt.Fprintf(&b, "Criteria: %s\n", r.Criteria)
	}
	fmt.Fprintf(&b, "Reference answer: %s\n", r.ReferenceAnswer)
	b.WriteString("\nLearner answer:\n")
	if strings.TrimSpace(answer) == "" {
		b.WriteString("(empty)")
	} else {
		b.WriteString(answer)
	}
	return b.String()
}
