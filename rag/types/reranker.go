package types

import (
	"sort"
)

// Default weights of the topic reranker. They are tuning constants picked empirically: the
// vector similarity stays the primary signal and topic affinity corrects for passages whose
// dominant topic does not match the one implied by the query.
const (
	DefaultVectorWeight = 0.8
	DefaultTopicWeight  = 0.2
)

// Reranker defines the interface for reranking search results
type Reranker interface {
	// Rerank takes the query embedding and the candidates in search order, and returns them
	// scored and sorted by CombinedScore, descending. It never fails.
	Rerank(queryEmbedding []float32, candidates []Candidate) []RankedResult
}

// TopicTable holds the embeddings of topic labels. It is built once and only read afterwards.
type TopicTable struct {
	vectors map[string][]float32
	labels  []string
}

// NewTopicTable copies the given vectors into a new table.
func NewTopicTable(vectors map[string][]float32) *TopicTable {
	t := &TopicTable{vectors: make(map[string][]float32, len(vectors))}
	for label, v := range vectors {
		t.vectors[label] = append([]float32(nil), v...)
		t.labels = append(t.labels, label)
	}
	sort.Strings(t.labels)
	return t
}

// Vector returns the embedding of topic. The returned slice must not be modified.
func (t *TopicTable) Vector(topic string) ([]float32, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.vectors[topic]
	return v, ok
}

// Labels returns the topic labels in lexical order.
func (t *TopicTable) Labels() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.labels...)
}

// Len returns the number of topics in the table.
func (t *TopicTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.vectors)
}

// TopicReranker blends the vector similarity with the affinity between the query and the
// passage topics.
type TopicReranker struct {
	topics       *TopicTable
	vectorWeight float64
	topicWeight  float64
}

// NewTopicReranker creates a reranker over topics. Non-positive weights fall back to the defaults.
func NewTopicReranker(topics *TopicTable, vectorWeight, topicWeight float64) *TopicReranker {
	if vectorWeight <= 0 && topicWeight <= 0 {
		vectorWeight, topicWeight = DefaultVectorWeight, DefaultTopicWeight
	}
	return &TopicReranker{
		topics:       topics,
		vectorWeight: vectorWeight,
		topicWeight:  topicWeight,
	}
}

// TopicScore returns the best affinity between the query and the given topics, in [0, 1].
// Unknown topics and vectors that cannot be compared contribute 0.
func (r *TopicReranker) TopicScore(queryEmbedding []float32, topics []string) float64 {
	best := 0.0
	for _, topic := range topics {
		v, ok := r.topics.Vector(topic)
		if !ok {
			continue
		}
		sim, err := CosineSimilarity(queryEmbedding, v)
		if err != nil {
			continue
		}
		if sim = clamp01(sim); sim > best {
			best = sim
		}
	}
	return best
}

// Rerank implements Reranker.
func (r *TopicReranker) Rerank(queryEmbedding []float32, candidates []Candidate) []RankedResult {
	results := make([]RankedResult, len(candidates))
	for i, c := range candidates {
		topicScore := r.TopicScore(queryEmbedding, c.Topics)
		combined := r.vectorWeight*clamp01(float64(c.Similarity)) + r.topicWeight*topicScore
		results[i] = RankedResult{
			Candidate:     c,
			TopicScore:    float32(topicScore),
			CombinedScore: float32(clamp01(combined)),
		}
	}

	// Ties keep the order the index returned them in.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].Rank < results[j].Rank
	})

	return results
}
