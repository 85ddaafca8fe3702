package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

// RetryPolicy bounds every call to an external service: each attempt gets Timeout, and a
// failed attempt is repeated up to Retries more times, Interval apart.
type RetryPolicy struct {
	Timeout  time.Duration
	Retries  int
	Interval time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:  30 * time.Second,
		Retries:  1,
		Interval: 500 * time.Millisecond,
	}
}

func (p RetryPolicy) do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(retries)),
		ctx,
	)

	attempt := func() error {
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := op(callCtx)
		if err != nil && ctx.Err() != nil {
			// the caller gave up, retrying is pointless
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(attempt, b, func(err error, next time.Duration) {
		xlog.Warn("External call failed, retrying", "call", name, "error", err, "in", next)
	})
}

// ResilientEmbedder applies a RetryPolicy to an Embedder.
type ResilientEmbedder struct {
	embedder interfaces.Embedder
	policy   RetryPolicy
}

func NewResilientEmbedder(embedder interfaces.Embedder, policy RetryPolicy) *ResilientEmbedder {
	return &ResilientEmbedder{embedder: embedder, policy: policy}
}

func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	err := r.policy.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		embedding, err = r.embedder.Embed(ctx, text)
		return err
	})
	return embedding, err
}

func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	err := r.policy.do(ctx, "embed_batch", func(ctx context.Context) error {
		var err error
		embeddings, err = r.embedder.EmbedBatch(ctx, texts)
		return err
	})
	return embeddings, err
}

// ResilientIndex applies a RetryPolicy to the read paths of an Index. Writes are not
// retried since a partial batch may already have been stored.
type ResilientIndex struct {
	interfaces.Index
	policy RetryPolicy
}

func NewResilientIndex(index interfaces.Index, policy RetryPolicy) *ResilientIndex {
	return &ResilientIndex{Index: index, policy: policy}
}

func (r *ResilientIndex) Search(ctx context.Context, vector []float32, filter interfaces.SearchFilter, limit int) ([]types.Candidate, error) {
	var candidates []types.Candidate
	err := r.policy.do(ctx, "search", func(ctx context.Context) error {
		var err error
		candidates, err = r.Index.Search(ctx, vector, filter, limit)
		return err
	})
	return candidates, err
}

func (r *ResilientIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := r.policy.do(ctx, "count", func(ctx context.Context) error {
		var err error
		count, err = r.Index.Count(ctx)
		return err
	})
	return count, err
}

// ResilientCompleter applies a RetryPolicy to a Completer.
type ResilientCompleter struct {
	completer interfaces.Completer
	policy    RetryPolicy
}

func NewResilientCompleter(completer interfaces.Completer, policy RetryPolicy) *ResilientCompleter {
	return &ResilientCompleter{completer: completer, policy: policy}
}

func (r *ResilientCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out string
	err := r.policy.do(ctx, "complete", func(ctx context.Context) error {
		var err error
		out, err = r.completer.Complete(ctx, systemPrompt, userPrompt)
		return err
	})
	return out, err
}
