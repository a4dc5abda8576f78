package questiongen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/tutorbot/internal/llm"
)

// LLMGenerator implements Generator with an LLM provider.
type LLMGenerator struct {
	provider llm.Provider
	config   Config
}

// New creates an LLMGenerator.
func New(provider llm.Provider, cfg Config) *LLMGenerator {
	return &LLMGenerator{provider: provider, config: cfg}
}

// questionOutput is the raw model response before validation.
type questionOutput struct {
	Question        string   `json:"question"`
	KeyPoints       []string `json:"key_points"`
	Criteria        string   `json:"criteria"`
	ReferenceAnswer string   `json:"reference_answer"`
}

func (g *LLMGenerator) Generate(ctx context.Context, input Input) (*Question, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeQuestion)

	req := llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(input, g.config)},
		},
		Schema:      QuestionSchema,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	var raw questionOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	q := &Question{
		Text:       raw.Question,
		Difficulty: input.Difficulty,
		Rubric: Rubric{
			Question:        raw.Question,
			KeyPoints:       nonEmpty(raw.KeyPoints),
			Criteria:        raw.Criteria,
			ReferenceAnswer: raw.ReferenceAnswer,
			SourcePassageID: input.Passage.ID,
		},
	}

	for _, v := range g.config.Validators {
		if verr := v.Validate(q, input); verr != nil {
			return nil, verr
		}
	}
	return q, nil
}
