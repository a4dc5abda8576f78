package questiongen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/tutorbot/internal/curriculum"
	"github.com/abhisek/tutorbot/internal/knowledge"
	"github.com/abhisek/tutorbot/internal/llm"
)

func testInput() Input {
	return Input{
		Lesson: curriculum.Lesson{
			ID:       "risk-basics-1",
			Topic:    "risk_basics",
			Title:    "What is a risk",
			Summary:  "Risk as the effect of uncertainty on objectives.",
			Keywords: []string{"risk", "uncertainty"},
		},
		Passage: knowledge.Passage{
			ID:       "p1",
			Topic:    "risk_basics",
			Text:     "Q: What is a risk?\nA: The effect of uncertainty on objectives.",
			Prompt:   "What is a risk?",
			Response: "The effect of uncertainty on objectives.",
		},
		Difficulty: DifficultyBeginner,
	}
}

func questionJSON(text string, keyPoints ...string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"question":         text,
		"key_points":       keyPoints,
		"criteria":         "Accept synonyms for uncertainty.",
		"reference_answer": "Risk is the effect of uncertainty on objectives.",
	})
	return b
}

func TestLLMGenerator_Generate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: questionJSON("How would you define risk in one sentence?", "uncertainty", "objectives"),
	})
	gen := New(mock, DefaultConfig())

	q, err := gen.Generate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "How would you define risk in one sentence?", q.Text)
	assert.Equal(t, q.Text, q.Rubric.Question)
	assert.Equal(t, []string{"uncertainty", "objectives"}, q.Rubric.KeyPoints)
	assert.Equal(t, "p1", q.Rubric.SourcePassageID)
	assert.Equal(t, DifficultyBeginner, q.Difficulty)

	require.Len(t, mock.Calls, 1)
	req := mock.Calls[0]
	assert.Equal(t, QuestionSchema, req.Schema)
	assert.Contains(t, req.Messages[0].Content, "Q: What is a risk?")
	assert.Contains(t, req.Messages[0].Content, "Difficulty: beginner")
}

func TestLLMGenerator_RejectsMissingKeyPoints(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: questionJSON("Define risk.", " ")})
	_, err := New(mock, DefaultConfig()).Generate(context.Background(), testInput())

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "structural", verr.Validator)
	assert.True(t, verr.Retryable)
}

func TestLLMGenerator_RejectsDuplicate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: questionJSON("What IS a risk??", "uncertainty")})
	in := testInput()
	in.PriorQuestions = []string{"what is a risk"}

	_, err := New(mock, DefaultConfig()).Generate(context.Background(), in)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "dedup", verr.Validator)
}

func TestLLMGenerator_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	_, err := New(mock, DefaultConfig()).Generate(context.Background(), testInput())

	var pu *llm.ErrProviderUnavailable
	assert.True(t, errors.As(err, &pu))
}

func TestLLMGenerator_NoPassageUsesOutline(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: questionJSON("Why does uncertainty matter?", "objectives")})
	in := testInput()
	in.Passage = knowledge.Passage{}

	q, err := New(mock, DefaultConfig()).Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, q.Rubric.SourcePassageID)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "None. Use the lesson summary")
}

func TestPassageGenerator(t *testing.T) {
	gen := NewPassageGenerator()

	q, err := gen.Generate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "What is a risk?", q.Text)
	assert.Equal(t, "The effect of uncertainty on objectives.", q.Rubric.ReferenceAnswer)
	assert.Equal(t, []string{"The effect of uncertainty on objectives"}, q.Rubric.KeyPoints)

	in := testInput()
	in.Passage.Keywords = []string{"uncertainty", "objectives"}
	q, err = gen.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"uncertainty", "objectives"}, q.Rubric.KeyPoints)

	in.PriorQuestions = []string{"What is a risk?"}
	_, err = gen.Generate(context.Background(), in)
	assert.Error(t, err)

	in = testInput()
	in.Passage = knowledge.Passage{ID: "raw", Text: "free text"}
	_, err = gen.Generate(context.Background(), in)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.False(t, verr.Retryable)
}

func TestPassageGenerator_OutlineFallback(t *testing.T) {
	gen := NewPassageGenerator()
	in := testInput()
	in.Passage = knowledge.Passage{}

	first, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, first.Rubric.SourcePassageID)
	assert.Equal(t, in.Lesson.Summary, first.Rubric.ReferenceAnswer)
	assert.Equal(t, []string{"risk", "uncertainty"}, first.Rubric.KeyPoints)

	in.PriorQuestions = []string{first.Text}
	second, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	assert.NotEqual(t, normalize(first.Text), normalize(second.Text))

	in.Lesson.Summary = ""
	_, err = gen.Generate(context.Background(), in)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.False(t, verr.Retryable)
}

func TestBuildDedup(t *testing.T) {
	assert.Equal(t, "None", buildDedup(nil, 5))

	got := buildDedup([]string{"a", "b", "c"}, 2)
	assert.Equal(t, "1. b\n2. c", got)
	assert.False(t, strings.Contains(got, "a"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what is a risk", normalize("  What IS a   risk?? "))
	assert.Equal(t, normalize("RTO vs. RPO"), normalize("rto vs rpo"))
}
