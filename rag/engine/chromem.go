package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
)

// Metadata keys used to store passage fields alongside the chromem documents.
const (
	metaTitle      = "title"
	metaSourceURL  = "source_url"
	metaTopics     = "topics"
	metaChunkIndex = "chunk_index"
	metaCharStart  = "char_start"
	metaCharEnd    = "char_end"
	metaCreatedAt  = "created_at"

	// Every topic of a passage is also stored as its own key so that chromem's exact-match
	// metadata filter can express topic membership.
	topicKeyPrefix = "topic:"
)

// ChromemIndex is an Index backed by an embedded chromem-go database.
type ChromemIndex struct {
	collectionName string
	collection     *chromem.Collection
	db             *chromem.DB
}

// NewChromemIndex opens (or creates) a collection. When path is empty the database only
// lives in memory.
func NewChromemIndex(collection, path string) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, err
		}
	}

	idx := &ChromemIndex{
		collectionName: collection,
		db:             db,
	}

	c, err := db.GetOrCreateCollection(collection, nil, vectorsOnly)
	if err != nil {
		return nil, err
	}
	idx.collection = c

	return idx, nil
}

// Passages always come with their vectors, and queries are vectors already.
func vectorsOnly(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem index expects precomputed embeddings")
}

func (c *ChromemIndex) Count(ctx context.Context) (int, error) {
	return c.collection.Count(), nil
}

func (c *ChromemIndex) Reset(ctx context.Context) error {
	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("error deleting collection: %v", err)
	}
	collection, err := c.db.GetOrCreateCollection(c.collectionName, nil, vectorsOnly)
	if err != nil {
		return fmt.Errorf("error creating collection: %v", err)
	}
	c.collection = collection
	return nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, passages []types.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passage/vector count mismatch: %d vs %d", len(passages), len(vectors))
	}
	if len(passages) == 0 {
		return nil
	}

	documents := make([]chromem.Document, len(passages))
	for i, p := range passages {
		if p.ID == "" {
			return fmt.Errorf("passage %d has no id", i)
		}
		if p.Text == "" {
			return fmt.Errorf("passage %s: empty string", p.ID)
		}
		metadata, err := passageMetadata(p)
		if err != nil {
			return err
		}
		documents[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  metadata,
			Embedding: vectors[i],
			Content:   p.Text,
		}
	}

	return c.collection.AddDocuments(ctx, documents, runtime.NumCPU())
}

func (c *ChromemIndex) Search(ctx context.Context, vector []float32, filter interfaces.SearchFilter, limit int) ([]types.Candidate, error) {
	count := c.collection.Count()
	if count == 0 || limit <= 0 {
		return []types.Candidate{}, nil
	}
	// chromem refuses to return more results than it holds
	if limit > count {
		limit = count
	}

	var where map[string]string
	if filter.Topic != "" {
		where = map[string]string{topicKeyPrefix + filter.Topic: "true"}
	}

	results, err := c.collection.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		return nil, err
	}

	candidates := make([]types.Candidate, 0, len(results))
	for i, r := range results {
		candidates = append(candidates, types.Candidate{
			Passage:    passageFromMetadata(r.ID, r.Content, r.Metadata),
			Similarity: r.Similarity,
			Rank:       i,
		})
	}

	return candidates, nil
}

func passageMetadata(p types.Passage) (map[string]string, error) {
	topics, err := json.Marshal(p.Topics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal topics: %w", err)
	}
	metadata := map[string]string{
		metaTitle:      p.Title,
		metaSourceURL:  p.SourceURL,
		metaTopics:     string(topics),
		metaChunkIndex: strconv.Itoa(p.ChunkIndex),
		metaCharStart:  strconv.Itoa(p.CharStart),
		metaCharEnd:    strconv.Itoa(p.CharEnd),
	}
	if !p.CreatedAt.IsZero() {
		metadata[metaCreatedAt] = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, t := range p.Topics {
		metadata[topicKeyPrefix+t] = "true"
	}
	return metadata, nil
}

func passageFromMetadata(id, content string, metadata map[string]string) types.Passage {
	p := types.Passage{
		ID:        id,
		Text:      content,
		Title:     metadata[metaTitle],
		SourceURL: metadata[metaSourceURL],
	}
	if raw := metadata[metaTopics]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Topics); err != nil {
			xlog.Warn("Failed to decode passage topics", "id", id, "error", err)
		}
	}
	p.ChunkIndex, _ = strconv.Atoi(metadata[metaChunkIndex])
	p.CharStart, _ = strconv.Atoi(metadata[metaCharStart])
	p.CharEnd, _ = strconv.Atoi(metadata[metaCharEnd])
	if ts := metadata[metaCreatedAt]; ts != "" {
		p.CreatedAt, _ = time.Parse(time.RFC3339, ts)
	}
	return p
}
