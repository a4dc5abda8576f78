package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/abhisek/tutorbot/internal/questiongen"
)

// KeywordEvaluator scores by key point coverage: a key point counts as
// covered when most of its significant words appear in the answer. It
// needs no model and serves offline runs. Its confidence is fixed and
// moderate since it cannot judge meaning.
type KeywordEvaluator struct {
	// Coverage is the share of a key point's words that must appear,
	// default 0.6.
	Coverage float64
}

const keywordConfidence = 0.6

func (k KeywordEvaluator) Evaluate(_ context.Context, answer string, rubric questiongen.Rubric) (Evaluation, error) {
	need := k.Coverage
	if need <= 0 {
		need = 0.6
	}

	words := tokenSet(answer)
	if len(words) == 0 {
		return Evaluation{Score: 0, Feedback: "No answer given.", Confidence: 1}, nil
	}

	var missing []string
	covered := 0
	for _, kp := range rubric.KeyPoints {
		kpWords := significant(kp)
		if len(kpWords) == 0 {
			continue
		}
		hit := 0
		for _, w := range kpWords {
			if words[w] {
				hit++
			}
		}
		if float64(hit)/float64(len(kpWords)) >= need {
			covered++
		} else {
			missing = append(missing, kp)
		}
	}

	total := covered + len(missing)
	if total == 0 {
		return Evaluation{Score: 0, Feedback: "This question cannot be graded automatically.", Confidence: 0}, nil
	}

	score := math.Round(100 * float64(covered) / float64(total))
	feedback := "You covered every key point."
	if len(missing) > 0 {
		feedback = fmt.Sprintf("You covered %d of %d key points. Missing: %s. Reference: %s",
			covered, total, strings.Join(missing, "; "), rubric.ReferenceAnswer)
	}
	return Evaluation{Score: score, Feedback: feedback, Confidence: keywordConfidence}, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "and": true, "or": true, "to": true,
	"in": true, "on": true, "is": true, "are": true, "for": true, "by": true, "with": true,
	"it": true, "its": true, "that": true, "this": true, "as": true, "be": true,
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokens(s) {
		set[t] = true
	}
	return set
}

func significant(s string) []string {
	var out []string
	for _, t := range tokens(s) {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}
