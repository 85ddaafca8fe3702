package main

import (
	"context"
	"fmt"

	"github.com/lkirch/sciencesage/pkg/config"
	"github.com/lkirch/sciencesage/pkg/metrics"
	"github.com/lkirch/sciencesage/rag"
	"github.com/lkirch/sciencesage/rag/engine"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// backends holds the external services shared by the commands.
type backends struct {
	cfg      *config.Config
	embedder rag.Embedder
	index    rag.Index
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func (b *backends) retryPolicy() engine.RetryPolicy {
	policy := engine.DefaultRetryPolicy()
	policy.Timeout = b.cfg.External.Timeout
	policy.Retries = b.cfg.External.Retries
	return policy
}

func (b *backends) openAIClient() *openai.Client {
	clientConfig := openai.DefaultConfig(b.cfg.OpenAI.APIKey)
	if b.cfg.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = b.cfg.OpenAI.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

func (b *backends) completer() *engine.ResilientCompleter {
	return engine.NewResilientCompleter(
		engine.NewOpenAICompleter(b.openAIClient(), b.cfg.OpenAI.ChatModel, b.cfg.OpenAI.MaxTokens),
		b.retryPolicy(),
	)
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{cfg: cfg}
	if err := b.openEmbedder(ctx); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openIndex(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) openEmbedder(ctx context.Context) error {
	var (
		embedder rag.Embedder
		model    string
	)
	switch b.cfg.Embedding.Backend {
	case "hugot":
		h, err := engine.NewHugotEmbedder(b.cfg.Embedding.HugotModel, b.cfg.Embedding.HugotModelDir)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { h.Close() })
		embedder, model = h, b.cfg.Embedding.HugotModel
	default:
		embedder, model = engine.NewOpenAIEmbedder(b.openAIClient(), b.cfg.Embedding.Model), b.cfg.Embedding.Model
	}

	switch b.cfg.Cache.Backend {
	case "memory":
		embedder = engine.NewCachedEmbedder(embedder, engine.NewMemoryCache(b.cfg.Cache.TTL), model, b.cfg.Cache.TTL)
	case "redis":
		cache, err := engine.NewRedisCache(ctx, b.cfg.Cache.RedisAddr, b.cfg.Cache.RedisPassword, b.cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { cache.Close() })
		embedder = engine.NewCachedEmbedder(embedder, cache, model, b.cfg.Cache.TTL)
	}

	b.embedder = engine.NewResilientEmbedder(embedder, b.retryPolicy())
	xlog.Info("Embedder ready", "backend", b.cfg.Embedding.Backend, "model", model, "cache", b.cfg.Cache.Backend)
	return nil
}

func (b *backends) openIndex(ctx context.Context) error {
	var index rag.Index
	switch b.cfg.Index.Backend {
	case "postgres":
		sample, err := b.embedder.Embed(ctx, "embedding dimensions")
		if err != nil {
			return fmt.Errorf("failed to measure embedding dimensions: %w", err)
		}
		pg, err := engine.NewPostgresIndex(ctx, b.cfg.Index.Collection, b.cfg.Index.DatabaseURL, len(sample))
		if err != nil {
			return err
		}
		b.closers = append(b.closers, pg.Close)
		index = pg
	default:
		c, err := engine.NewChromemIndex(b.cfg.Index.Collection, b.cfg.Index.DBPath)
		if err != nil {
			return err
		}
		index = c
	}

	b.index = engine.NewResilientIndex(index, b.retryPolicy())
	count, err := b.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count indexed passages: %w", err)
	}
	xlog.Info("Index ready", "backend", b.cfg.Index.Backend, "collection", b.cfg.Index.Collection, "passages", count)
	return nil
}

func (b *backends) ingester() *rag.Ingester {
	return rag.NewIngester(b.embedder, b.index, rag.IngestOptions{
		BatchSize:    b.cfg.Ingest.BatchSize,
		ChunkSize:    b.cfg.Ingest.ChunkSize,
		ChunkOverlap: b.cfg.Ingest.ChunkOverlap,
	})
}

// pipeline builds the topic table and the answering pipeline. A topic that cannot be
// embedded is fatal.
func (b *backends) pipeline(ctx context.Context, m *metrics.Metrics) (*rag.Pipeline, error) {
	topics, err := rag.BuildTopicTable(ctx, b.embedder, b.cfg.Topics)
	if err != nil {
		return nil, err
	}

	completer := b.completer()
	reranker := types.NewTopicReranker(topics, b.cfg.Retrieval.VectorWeight, b.cfg.Retrieval.TopicWeight)

	minScore := b.cfg.Retrieval.MinScore
	if minScore == 0 {
		// MIN_SCORE=0 turns the filter off
		minScore = -1
	}

	return rag.NewPipeline(b.embedder, b.index, reranker, completer, rag.PipelineOptions{
		SearchLimit: b.cfg.Retrieval.SearchLimit,
		TopN:        b.cfg.Retrieval.TopN,
		MinScore:    minScore,
		TokenBudget: b.cfg.Retrieval.TokenBudget,
		Metrics:     m,
	}), nil
}
