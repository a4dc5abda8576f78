package questiongen

import (
	"fmt"
	"strings"
	"unicode"
)

// Validator checks a generated question. Implementations are stateless.
type Validator interface {
	Name() string
	Validate(q *Question, input Input) *ValidationError
}

// ValidationError describes why a question was rejected.
type ValidationError struct {
	Validator string
	Message   string
	Retryable bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

// StructuralValidator rejects empty questions and incomplete rubrics.
type StructuralValidator struct{}

func (StructuralValidator) Name() string { return "structural" }

func (v StructuralValidator) Validate(q *Question, _ Input) *ValidationError {
	fail := func(msg string) *ValidationError {
		return &ValidationError{Validator: v.Name(), Message: msg, Retryable: true}
	}
	switch {
	case strings.TrimSpace(q.Text) == "":
		return fail("question text is empty")
	case len(nonEmpty(q.Rubric.KeyPoints)) == 0:
		return fail("rubric has no key points")
	case strings.TrimSpace(q.Rubric.ReferenceAnswer) == "":
		return fail("rubric has no reference answer")
	}
	return nil
}

// DedupValidator rejects a question already asked in the session.
type DedupValidator struct{}

func (DedupValidator) Name() string { return "dedup" }

func (v DedupValidator) Validate(q *Question, input Input) *ValidationError {
	norm := normalize(q.Text)
	for _, prior := range input.PriorQuestions {
		if normalize(prior) == norm {
			return &ValidationError{
				Validator: v.Name(),
				Message:   fmt.Sprintf("duplicate of an earlier question: %q", prior),
				Retryable: true,
			}
		}
	}
	return nil
}

// normalize folds case, punctuation and whitespace so trivially
// rephrased duplicates compare equal.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
