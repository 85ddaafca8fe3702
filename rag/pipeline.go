package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lkirch/sciencesage/pkg/metrics"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

var (
	// ErrUpstreamUnavailable wraps embedding and search failures: the question could not be
	// looked up at all.
	ErrUpstreamUnavailable = errors.New("answer unavailable")

	ErrEmptyQuery = errors.New("query must not be empty")
)

const (
	DefaultSearchLimit = 20
	DefaultMinScore    = 0.2
)

// PipelineOptions tunes retrieval. Zero values select the defaults.
type PipelineOptions struct {
	SearchLimit int
	TopN        int
	// MinScore is the similarity under which candidates are dropped. A negative value keeps
	// every candidate.
	MinScore    float64
	TokenBudget int
	Metrics     *metrics.Metrics
}

// Pipeline answers questions: embed, search, rerank, merge, assemble, generate.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	embedder  Embedder
	index     Index
	reranker  types.Reranker
	assembler *Assembler
	generator *Generator
	metrics   *metrics.Metrics

	searchLimit int
	topN        int
	minScore    float32
}

func NewPipeline(embedder Embedder, index Index, reranker types.Reranker, completer Completer, opts PipelineOptions) *Pipeline {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	switch {
	case opts.MinScore == 0:
		opts.MinScore = DefaultMinScore
	case opts.MinScore < 0:
		opts.MinScore = math.Inf(-1)
	}
	if opts.TokenBudget == 0 {
		opts.TokenBudget = DefaultTokenBudget
	}

	return &Pipeline{
		embedder:    embedder,
		index:       index,
		reranker:    reranker,
		assembler:   NewAssembler(opts.TokenBudget),
		generator:   NewGenerator(completer),
		metrics:     opts.Metrics,
		searchLimit: opts.SearchLimit,
		topN:        opts.TopN,
		minScore:    float32(opts.MinScore),
	}
}

// Retrieve runs the pipeline up to context assembly. The returned Response has no answer.
func (p *Pipeline) Retrieve(ctx context.Context, query, topic string) (*types.Response, error) {
	assembly, err := p.retrieve(ctx, query, topic)
	if err != nil {
		p.metrics.CountRequest("retrieve", outcomeOf(err))
		return nil, err
	}
	if assembly.Empty() {
		p.metrics.CountRequest("retrieve", metrics.OutcomeNoResults)
	} else {
		p.metrics.CountRequest("retrieve", metrics.OutcomeAnswered)
	}

	return &types.Response{
		Context:    assembly.Items,
		References: assembly.References,
		Citations:  assembly.Citations,
	}, nil
}

// RetrieveAnswer answers query about topic at the given level. Finding nothing is not an
// error: the response then carries FallbackAnswer and empty lists. Errors wrap
// ErrUpstreamUnavailable when the embedding or search backend failed.
func (p *Pipeline) RetrieveAnswer(ctx context.Context, query, topic string, level types.Level) (*types.Response, error) {
	assembly, err := p.retrieve(ctx, query, topic)
	if err != nil {
		p.metrics.CountRequest("answer", outcomeOf(err))
		return nil, err
	}

	if assembly.Empty() {
		xlog.Info("No context found, answering with fallback", "topic", topic)
		p.metrics.CountRequest("answer", metrics.OutcomeNoResults)
		p.metrics.CountFallback("answer")
		return types.NewEmptyResponse(FallbackAnswer), nil
	}

	start := time.Now()
	answer, fallback := p.generator.Answer(ctx, query, topic, level, assembly)
	p.metrics.ObserveStage(metrics.StageGenerate, start)
	if fallback {
		p.metrics.CountFallback("answer")
	}
	p.metrics.CountRequest("answer", metrics.OutcomeAnswered)

	return &types.Response{
		Answer:     answer,
		Context:    assembly.Items,
		References: assembly.References,
		Citations:  ResolveCitations(answer, assembly.Citations),
	}, nil
}

// Rephrase returns a clarified version of query; it falls back to query unchanged.
func (p *Pipeline) Rephrase(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return query
	}
	out, fallback := p.generator.Rephrase(ctx, query)
	if fallback {
		p.metrics.CountFallback("rephrase")
	}
	return out
}

func (p *Pipeline) retrieve(ctx context.Context, query, topic string) (Assembly, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Assembly{}, ErrEmptyQuery
	}

	start := time.Now()
	queryVector, err := p.embedder.Embed(ctx, query)
	p.metrics.ObserveStage(metrics.StageEmbed, start)
	if err != nil {
		return Assembly{}, fmt.Errorf("%w: embedding query: %w", ErrUpstreamUnavailable, err)
	}

	start = time.Now()
	candidates, err := p.index.Search(ctx, queryVector, SearchFilter{Topic: topic}, p.searchLimit)
	p.metrics.ObserveStage(metrics.StageSearch, start)
	if err != nil {
		return Assembly{}, fmt.Errorf("%w: searching index: %w", ErrUpstreamUnavailable, err)
	}

	kept := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= p.minScore {
			kept = append(kept, c)
		}
	}
	p.metrics.ObserveCandidates(len(kept))
	xlog.Debug("Search done", "topic", topic, "candidates", len(candidates), "kept", len(kept))

	start = time.Now()
	ranked := p.reranker.Rerank(queryVector, kept)
	p.metrics.ObserveStage(metrics.StageRerank, start)

	start = time.Now()
	items := Merge(ranked, p.topN)
	p.metrics.ObserveStage(metrics.StageMerge, start)

	start = time.Now()
	assembly := p.assembler.Assemble(items)
	p.metrics.ObserveStage(metrics.StageAssemble, start)

	return assembly, nil
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return metrics.OutcomeUnavailable
	}
	return "invalid"
}
