package questiongen

import "github.com/abhisek/tutorbot/internal/llm"

// QuestionSchema is the structured output requested from the model.
var QuestionSchema = &llm.Schema{
	Name:        "lesson-question",
	Description: "One open-ended lesson question with its grading rubric",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "The question shown to the learner. Answerable in a few sentences.",
			},
			"key_points": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "2-4 ideas a complete answer must cover",
			},
			"criteria": map[string]any{
				"type":        "string",
				"description": "What paraphrases are acceptable and how partial answers earn credit",
			},
			"reference_answer": map[string]any{
				"type":        "string",
				"description": "A model answer grounded in the context passage",
			},
		},
		"required":             []any{"question", "key_points", "criteria", "reference_answer"},
		"additionalProperties": false,
	},
}
