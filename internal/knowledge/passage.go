// Package knowledge is the retrievable knowledge base: a content
// addressed passage index with embedding search.
package knowledge

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Passage is one retrievable unit of knowledge.
type Passage struct {
	// ID is content addressed: the same text always has the same ID.
	ID    string
	Topic string
	Text  string

	// Prompt and Response are the question/answer pair the text was
	// built from, when it came from a Q&A record.
	Prompt     string
	Response   string
	Lesson     string
	Difficulty string
	Keywords   []string

	// Score is the cosine similarity to the query, set by searches.
	Score float64
}

// Document is an input to Index.Add.
type Document struct {
	Topic      string
	Prompt     string
	Response   string
	Lesson     string
	Difficulty string
	Keywords   []string

	// Text overrides the "Q: ...\nA: ..." rendering of Prompt/Response.
	Text string
}

func (d Document) text() string {
	if d.Text != "" {
		return d.Text
	}
	return "Q: " + strings.TrimSpace(d.Prompt) + "\nA: " + strings.TrimSpace(d.Response)
}

// PassageID returns the content address of text.
func PassageID(text string) string {
	h := blake3.New()
	h.Write([]byte("tutorbot/passage\x00"))
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
