package types

// Candidate is a passage returned by a nearest-neighbour search, before reranking.
type Candidate struct {
	Passage

	// The cosine similarity between the query and the passage as reported by the index.
	// The higher the value, the more similar the passage is to the query.
	Similarity float32 `json:"similarity"`

	// Rank is the zero-based position the index returned this candidate at.
	// The reranker uses it to break ties.
	Rank int `json:"rank"`
}

// RankedResult is a Candidate scored by a Reranker.
type RankedResult struct {
	Candidate

	// TopicScore is the best affinity between the query and one of the passage topics.
	TopicScore float32 `json:"topic_score"`

	// CombinedScore represents the final score after reranking.
	// Lists of RankedResult returned by a Reranker are sorted by it, descending.
	CombinedScore float32 `json:"combined_score"`
}

// ContextItem is a deduplicated passage ready to be handed to the generator.
type ContextItem struct {
	Text       string   `json:"text"`
	Title      string   `json:"title"`
	ChunkIndex int      `json:"chunk_index"`
	PassageIDs []string `json:"passage_ids"`
	URLs       []string `json:"urls"`

	// Score is the maximum combined score among the merged duplicates.
	Score float32 `json:"score"`
}

// Reference is a citable unit derived from a ContextItem, one per (item, URL).
type Reference struct {
	// Number is the 1-based position in the reference list, the N in an [N] marker.
	Number    int     `json:"number"`
	URL       string  `json:"url"`
	Snippet   string  `json:"snippet"`
	Score     float32 `json:"score"`
	ItemIndex int     `json:"item_index"`
}

// Citation resolves an inline marker found in (or allowed in) an answer.
type Citation struct {
	Marker    string    `json:"marker"`
	Reference Reference `json:"reference"`
}

// Response is what a question produces: the grounded answer and everything it was grounded on.
type Response struct {
	Answer     string        `json:"answer"`
	Context    []ContextItem `json:"context"`
	References []Reference   `json:"references"`
	Citations  []Citation    `json:"citations"`
}

// NewEmptyResponse returns a response carrying only the given answer, with empty (non-nil) lists.
func NewEmptyResponse(answer string) *Response {
	return &Response{
		Answer:     answer,
		Context:    []ContextItem{},
		References: []Reference{},
		Citations:  []Citation{},
	}
}
