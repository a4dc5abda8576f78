package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abhisek/tutorbot/internal/llm"
	"github.com/abhisek/tutorbot/internal/questiongen"
)

func testRubric() questiongen.Rubric {
	return questiongen.Rubric{
		Question:        "What is a recovery time objective?",
		KeyPoints:       []string{"target time", "restore process"},
		Criteria:        "Accept 'maximum time to recover'.",
		ReferenceAnswer: "The target time within which a process must be restored after a disruption.",
		SourcePassageID: "p-rto",
	}
}

func TestLLMEvaluator_Evaluate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"score":85,"feedback":"Good, you named the target time.","confidence":0.9}`),
	})
	ev, err := New(mock, DefaultConfig(), nil).Evaluate(context.Background(), "The time within which we must restore it.", testRubric())
	require.NoError(t, err)
	assert.Equal(t, 85.0, ev.Score)
	assert.Equal(t, 0.9, ev.Confidence)
	assert.False(t, ev.LowConfidence())

	msg := mock.Calls[0].Messages[0].Content
	assert.Contains(t, msg, "1. target time")
	assert.Contains(t, msg, "Learner answer:\nThe time within which")
	assert.Equal(t, EvaluationSchema, mock.Calls[0].Schema)
}

func TestLLMEvaluator_OutOfRangeScorePassesThrough(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"score":130,"feedback":"Excellent!","confidence":0.8}`),
	})
	ev, err := New(mock, DefaultConfig(), nil).Evaluate(context.Background(), "x", testRubric())
	require.NoError(t, err)
	assert.Equal(t, 130.0, ev.Score)
}

func TestLLMEvaluator_LowConfidenceIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"score":50,"feedback":"Unclear.","confidence":0.3}`),
	})
	ev, err := New(mock, DefaultConfig(), zap.New(core)).Evaluate(context.Background(), "maybe", testRubric())
	require.NoError(t, err)
	assert.True(t, ev.LowConfidence())
	assert.Equal(t, 1, logs.FilterMessage("low confidence evaluation").Len())
}

func TestLLMEvaluator_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrRateLimit{}})
	_, err := New(mock, DefaultConfig(), nil).Evaluate(context.Background(), "x", testRubric())
	var rl *llm.ErrRateLimit
	assert.True(t, errors.As(err, &rl))
}

func TestKeywordEvaluator(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		score  float64
	}{
		{"all points", "It is the target time to restore a process.", 100},
		{"one point", "Some target time.", 50},
		{"nothing relevant", "I like turtles.", 0},
		{"empty", "   ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := KeywordEvaluator{}.Evaluate(context.Background(), tt.answer, testRubric())
			require.NoError(t, err)
			assert.Equal(t, tt.score, ev.Score)
			assert.NotEmpty(t, ev.Feedback)
		})
	}
}

func TestKeywordEvaluator_NoKeyPoints(t *testing.T) {
	ev, err := KeywordEvaluator{}.Evaluate(context.Background(), "anything", questiongen.Rubric{KeyPoints: []string{"the of"}})
	require.NoError(t, err)
	assert.True(t, ev.LowConfidence())
}
