package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lkirch/sciencesage/pkg/chunk"
	"github.com/lkirch/sciencesage/rag/sources"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultBatchSize    = 64
)

type IngestOptions struct {
	BatchSize    int
	ChunkSize    int
	ChunkOverlap int
}

// Ingester embeds passages and stores them in an Index.
type Ingester struct {
	embedder Embedder
	index    Index

	batchSize    int
	chunkSize    int
	chunkOverlap int
}

func NewIngester(embedder Embedder, index Index, opts IngestOptions) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	return &Ingester{
		embedder:     embedder,
		index:        index,
		batchSize:    opts.BatchSize,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
	}
}

// PassageID derives a stable identifier for a chunk, so that re-ingesting the same source
// replaces passages instead of duplicating them.
func PassageID(source string, chunkIndex int, text string) string {
	name := source + "\x00" + strconv.Itoa(chunkIndex) + "\x00" + strings.TrimSpace(text)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// DocumentPassages chunks a document into passages tagged with topics.
func (i *Ingester) DocumentPassages(doc sources.Document, topics []string) []types.Passage {
	now := time.Now().UTC()
	passages := []types.Passage{}
	for idx, c := range chunk.Split(doc.Text, i.chunkSize, i.chunkOverlap) {
		passages = append(passages, types.Passage{
			ID:         PassageID(doc.Source(), idx, c.Text),
			Text:       c.Text,
			Title:      doc.Title,
			SourceURL:  doc.URL,
			Topics:     append([]string{}, topics...),
			ChunkIndex: idx,
			CharStart:  c.Start,
			CharEnd:    c.End,
			CreatedAt:  now,
		})
	}
	return passages
}

// IngestDocuments chunks, embeds and stores documents. It returns the number of passages
// stored.
func (i *Ingester) IngestDocuments(ctx context.Context, docs []sources.Document, topics []string) (int, error) {
	passages := []types.Passage{}
	for _, doc := range docs {
		p := i.DocumentPassages(doc, topics)
		xlog.Debug("Chunked document", "source", doc.Source(), "chunks", len(p))
		passages = append(passages, p...)
	}
	return i.IngestPassages(ctx, passages)
}

// IngestPassages embeds and stores passages in batches. Passages without an ID get one from
// PassageID.
func (i *Ingester) IngestPassages(ctx context.Context, passages []types.Passage) (int, error) {
	stored := 0
	for start := 0; start < len(passages); start += i.batchSize {
		end := min(start+i.batchSize, len(passages))
		batch := make([]types.Passage, end-start)
		copy(batch, passages[start:end])

		texts := make([]string, len(batch))
		for j := range batch {
			if batch[j].ID == "" {
				source := batch[j].SourceURL
				if source == "" {
					source = batch[j].Title
				}
				batch[j].ID = PassageID(source, batch[j].ChunkIndex, batch[j].Text)
			}
			texts[j] = batch[j].Text
		}

		vectors, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("embedding passages %d-%d: %w", start, end, err)
		}
		if err := i.index.Upsert(ctx, batch, vectors); err != nil {
			return stored, fmt.Errorf("storing passages %d-%d: %w", start, end, err)
		}

		stored += len(batch)
		xlog.Info("Stored passages", "stored", stored, "total", len(passages))
	}
	return stored, nil
}
