// Package questiongen turns knowledge passages into lesson questions
// with answer rubrics.
package questiongen

import "context"

// Generator produces one question per call.
type Generator interface {
	// Generate returns a validated Question. A *ValidationError means
	// the output was rejected and regenerating may fix it.
	Generate(ctx context.Context, input Input) (*Question, error)
}
