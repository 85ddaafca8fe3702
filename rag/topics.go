package rag

import (
	"context"
	"fmt"

	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

// BuildTopicTable embeds every topic label once. It must complete before the first request
// is served; an error means the process cannot start.
func BuildTopicTable(ctx context.Context, embedder Embedder, labels []string) (*types.TopicTable, error) {
	vectors := make(map[string][]float32, len(labels))
	for _, label := range labels {
		if label == "" {
			continue
		}
		if _, exists := vectors[label]; exists {
			continue
		}
		v, err := embedder.Embed(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("failed to embed topic %q: %w", label, err)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding for topic %q", label)
		}
		vectors[label] = v
	}

	xlog.Info("Topic table ready", "topics", len(vectors))
	return types.NewTopicTable(vectors), nil
}
