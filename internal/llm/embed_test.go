package llm

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, _ := e.Embed(context.Background(), []string{"Goroutines are cheap threads"})
	b, _ := e.Embed(context.Background(), []string{"goroutines ARE cheap, threads!"})
	if len(a[0]) != 64 {
		t.Fatalf("dims = %d", len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("expected identical vectors for the same tokens")
		}
	}
}

func TestHashEmbedder_SharedVocabularyRanksHigher(t *testing.T) {
	e := NewHashEmbedder(0)
	vecs, err := e.Embed(context.Background(), []string{
		"channels synchronize goroutines",
		"buffered channels and goroutines",
		"sql transactions isolation levels",
	})
	if err != nil {
		t.Fatal(err)
	}
	near := cosine(vecs[0], vecs[1])
	far := cosine(vecs[0], vecs[2])
	if near <= far {
		t.Fatalf("expected related text closer: near=%f far=%f", near, far)
	}
	if e.ModelID() != "hash-256" {
		t.Fatalf("model = %q", e.ModelID())
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	vecs, _ := NewHashEmbedder(8).Embed(context.Background(), []string{"  ..  "})
	for _, x := range vecs[0] {
		if x != 0 {
			t.Fatal("expected zero vector for text without tokens")
		}
	}
}

func TestNewEmbedder_DefaultsToHashForOfflineProviders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "mock"
	e, err := NewEmbedder(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*HashEmbedder); !ok {
		t.Fatalf("expected HashEmbedder, got %T", e)
	}
}
