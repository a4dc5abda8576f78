package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"github.com/zeebo/blake3"
	"google.golang.org/genai"
)

// Embedder turns text into dense vectors for similarity search.
type Embedder interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// ModelID identifies the embedding space. Vectors from different
	// models must not be compared.
	ModelID() string
}

// OpenAIEmbedder embeds through the OpenAI embeddings endpoint or any
// compatible server.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an OpenAIEmbedder. An empty model selects
// text-embedding-3-small.
func NewOpenAIEmbedder(cfg OpenAIConfig, model string) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key is required for embeddings")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: newOpenAIClient(cfg.APIKey, cfg.BaseURL), model: model}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, &ErrInvalidResponse{
			Err: fmt.Errorf("embedding count mismatch: want %d, got %d", len(inputs), len(resp.Data)),
		}
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &ErrInvalidResponse{Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) ModelID() string { return e.model }

// GeminiEmbedder embeds through the Gemini embedContent API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates a GeminiEmbedder. An empty model selects
// text-embedding-004.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig, model string) (*GeminiEmbedder, error) {
	client, err := newGeminiClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(inputs))
	for i, in := range inputs {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: in}}}
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, mapGeminiError(err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, &ErrInvalidResponse{
			Err: fmt.Errorf("embedding count mismatch: want %d, got %d", len(inputs), len(resp.Embeddings)),
		}
	}
	out := make([][]float32, len(inputs))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, &ErrInvalidResponse{Err: errors.New("missing embedding")}
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *GeminiEmbedder) ModelID() string { return e.model }

// HashEmbedder is a deterministic, offline embedder based on feature
// hashing of lower-cased word tokens. Texts sharing vocabulary land close
// together, which is enough for topic retrieval in tests and demos.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder with the given dimensionality
// (default 256).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = e.vector(in)
	}
	return out, nil
}

func (e *HashEmbedder) ModelID() string { return fmt.Sprintf("hash-%d", e.dims) }

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		sum := blake3.Sum256([]byte(tok))
		idx := (int(sum[0])<<8 | int(sum[1])) % e.dims
		sign := float32(1)
		if sum[2]&1 == 1 {
			sign = -1
		}
		v[idx] += sign
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
