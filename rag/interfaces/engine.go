package interfaces

import (
	"context"
	"time"

	"github.com/lkirch/sciencesage/rag/types"
)

// Embedder turns text into a fixed-dimension vector. It returns an error rather than a
// malformed vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchFilter restricts a search. An empty Topic matches every passage.
type SearchFilter struct {
	Topic string
}

// Index stores passage vectors and answers filtered nearest-neighbour queries.
type Index interface {
	// Search returns at most limit candidates ordered by similarity, descending.
	// It returns fewer when the index holds fewer matching passages.
	Search(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]types.Candidate, error)
	Upsert(ctx context.Context, passages []types.Passage, vectors [][]float32) error
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// Completer runs a single-turn completion. No state is carried between calls.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EmbeddingCache stores embeddings by key.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, embedding []float32, ttl time.Duration)
}
