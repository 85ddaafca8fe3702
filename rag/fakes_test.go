package rag_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/lkirch/sciencesage/rag/types"
)

var keywords = []string{"mars", "radiation", "travel", "moon", "animal", "orbit"}

// keywordVector is a tiny deterministic embedding: one dimension per keyword plus a bias
// dimension so that no vector is zero.
func keywordVector(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(keywords)+1)
	for i, k := range keywords {
		v[i] = float32(strings.Count(text, k))
	}
	v[len(keywords)] = 0.1
	return v
}

type fakeEmbedder struct {
	err     error
	calls   atomic.Int32
	batches atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return keywordVector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

type fakeIndex struct {
	candidates []types.Candidate
	err        error
	lastFilter interfaces.SearchFilter
	lastLimit  int
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, filter interfaces.SearchFilter, limit int) ([]types.Candidate, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeIndex) Upsert(ctx context.Context, passages []types.Passage, vectors [][]float32) error {
	return f.err
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) { return len(f.candidates), f.err }
func (f *fakeIndex) Reset(ctx context.Context) error        { return f.err }

type fakeCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	calls   int
	systems []string
	users   []string
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.systems = append(f.systems, systemPrompt)
	f.users = append(f.users, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ranked(id, text, url string, score float32) types.RankedResult {
	return types.RankedResult{
		Candidate: types.Candidate{
			Passage: types.Passage{ID: id, Text: text, SourceURL: url, Title: "title-" + id},
		},
		CombinedScore: score,
	}
}
