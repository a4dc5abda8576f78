package llm

import (
	"context"
	"encoding/json"
)

// Provider phrases lesson questions and grades answers through a hosted
// model. Every call the tutor makes is single-turn: a persona in
// Request.System and one user message.
type Provider interface {
	// Generate runs one completion. When req.Schema is set, the
	// returned Content has already been validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	ModelID() string
}

// Role identifies who wrote a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Normalized values of Response.StopReason.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

type Message struct {
	Role    Role
	Content string
}

type Request struct {
	System    string
	Messages  []Message
	MaxTokens int

	// Schema asks for structured JSON output; nil means raw text.
	Schema *Schema

	// Temperature in [0,1]; zero keeps the provider default.
	Temperature float64
}

// Schema is a JSON Schema document the output must satisfy. Name is
// kebab-case (e.g. "lesson-question") and keys the compiled-validator
// cache, so two schemas must never share one.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Response is a completed call. Content holds validated JSON when the
// request carried a Schema and raw text otherwise. Model is the model
// that actually served the call, which may differ from ModelID for
// aliases.
type Response struct {
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason string
}

// Usage is the token count of one call, recorded per request in the
// audit log.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func usage(in, out int64) Usage {
	return Usage{InputTokens: int(in), OutputTokens: int(out), TotalTokens: int(in + out)}
}

func stopReason(truncated bool) string {
	if truncated {
		return StopMaxTokens
	}
	return StopEnd
}
