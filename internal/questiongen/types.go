package questiongen

import (
	"github.com/abhisek/tutorbot/internal/curriculum"
	"github.com/abhisek/tutorbot/internal/knowledge"
)

// Difficulty is the learner level a question is pitched at.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Rubric is what an answer is judged against. It is not necessarily the
// verbatim answer.
type Rubric struct {
	// Question is the text the learner was asked.
	Question string `json:"question"`

	// KeyPoints are the ideas a complete answer covers.
	KeyPoints []string `json:"key_points"`

	// Criteria describes acceptable paraphrases and partial credit.
	Criteria string `json:"criteria"`

	ReferenceAnswer string `json:"reference_answer"`

	// SourcePassageID is the knowledge passage the question came from,
	// empty when it was generated from the lesson outline alone.
	SourcePassageID string `json:"source_passage_id,omitempty"`
}

// Question is a generated question with its rubric.
type Question struct {
	Text       string
	Rubric     Rubric
	Difficulty Difficulty
}

// Input is everything a generator may use for one question.
type Input struct {
	Lesson  curriculum.Lesson
	Passage knowledge.Passage

	// PriorQuestions are the questions already asked in this session,
	// oldest first. The new question must differ from all of them.
	PriorQuestions []string

	Difficulty Difficulty
}
