// Package evaluator scores free-form answers against a question rubric.
package evaluator

import (
	"context"

	"github.com/abhisek/tutorbot/internal/questiongen"
)

// LowConfidence is the confidence below which an evaluation is flagged
// for review. Flagged evaluations still count.
const LowConfidence = 0.5

// Evaluation is the verdict on one answer.
type Evaluation struct {
	// Score is nominally in [0, 100]. Evaluators do not clamp it; range
	// checking is the caller's job.
	Score      float64
	Feedback   string
	Confidence float64
}

// LowConfidence reports whether the evaluator was unsure.
func (e Evaluation) LowConfidence() bool {
	return e.Confidence < LowConfidence
}

// Evaluator scores an answer.
type Evaluator interface {
	Evaluate(ctx context.Context, answer string, rubric questiongen.Rubric) (Evaluation, error)
}
