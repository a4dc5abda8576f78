package questiongen

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/tutorbot/internal/curriculum"
)

// PassageGenerator asks the question a Q&A passage was built from, with
// the passage response as the reference answer. Given no passage it asks
// about the lesson outline instead. It needs no model and serves offline
// runs.
type PassageGenerator struct {
	Validators []Validator
}

// NewPassageGenerator creates a PassageGenerator with the default
// validator chain.
func NewPassageGenerator() *PassageGenerator {
	return &PassageGenerator{Validators: DefaultConfig().Validators}
}

func (g *PassageGenerator) Generate(_ context.Context, input Input) (*Question, error) {
	var (
		q    *Question
		verr *ValidationError
	)
	if isOutline(input) {
		q, verr = outlineQuestion(input)
	} else {
		q, verr = passageQuestion(input)
	}
	if verr != nil {
		return nil, verr
	}
	for _, v := range g.Validators {
		if verr := v.Validate(q, input); verr != nil {
			return nil, verr
		}
	}
	return q, nil
}

func isOutline(input Input) bool {
	p := input.Passage
	return p.ID == "" && strings.TrimSpace(p.Text) == "" && strings.TrimSpace(p.Prompt) == ""
}

func passageQuestion(input Input) (*Question, *ValidationError) {
	p := input.Passage
	text := strings.TrimSpace(p.Prompt)
	answer := strings.TrimSpace(p.Response)
	if text == "" || answer == "" {
		return nil, &ValidationError{
			Validator: "passage",
			Message:   fmt.Sprintf("passage %q has no question/answer pair", p.ID),
			Retryable: false,
		}
	}

	keyPoints := p.Keywords
	if len(nonEmpty(keyPoints)) == 0 {
		keyPoints = splitSentences(answer)
	}
	return &Question{
		Text:       text,
		Difficulty: input.Difficulty,
		Rubric: Rubric{
			Question:        text,
			KeyPoints:       nonEmpty(keyPoints),
			Criteria:        "Accept any wording that conveys the reference answer's meaning.",
			ReferenceAnswer: answer,
			SourcePassageID: p.ID,
		},
	}, nil
}

// outlineTemplates are tried in order; the first one not already asked
// in the session wins.
var outlineTemplates = []func(l curriculum.Lesson) string{
	func(l curriculum.Lesson) string { return fmt.Sprintf("In your own words, what is %s about?", l.Title) },
	func(l curriculum.Lesson) string { return fmt.Sprintf("Why does %s matter in practice?", l.Title) },
	func(l curriculum.Lesson) string {
		return fmt.Sprintf("Give an example that shows the main idea of %s.", l.Title)
	},
	func(l curriculum.Lesson) string {
		return fmt.Sprintf("Which points would you cover when explaining %s to a colleague?", l.Title)
	},
}

func outlineQuestion(input Input) (*Question, *ValidationError) {
	l := input.Lesson
	answer := strings.TrimSpace(l.Summary)
	if answer == "" {
		return nil, &ValidationError{
			Validator: "passage",
			Message:   fmt.Sprintf("lesson %q has no passages left and no summary", l.ID),
			Retryable: false,
		}
	}

	asked := make(map[string]bool, len(input.PriorQuestions))
	for _, prior := range input.PriorQuestions {
		asked[normalize(prior)] = true
	}
	var text string
	for _, tmpl := range outlineTemplates {
		if t := tmpl(l); !asked[normalize(t)] {
			text = t
			break
		}
	}
	if text == "" {
		return nil, &ValidationError{
			Validator: "passage",
			Message:   fmt.Sprintf("every outline question for lesson %q was already asked", l.ID),
			Retryable: false,
		}
	}

	keyPoints := nonEmpty(l.Keywords)
	if len(keyPoints) == 0 {
		keyPoints = splitSentences(answer)
	}
	return &Question{
		Text:       text,
		Difficulty: input.Difficulty,
		Rubric: Rubric{
			Question:        text,
			KeyPoints:       keyPoints,
			Criteria:        "Accept any answer consistent with the lesson summary that touches the key points.",
			ReferenceAnswer: answer,
		},
	}, nil
}

func splitSentences(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == ';' || r == '\n' })
	return nonEmpty(parts)
}
