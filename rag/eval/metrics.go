package eval

import (
	"math"
	"strings"
	"unicode"
)

// Item is a retrieved context item as seen by the evaluator: every identifier it is known
// by, and its text.
type Item struct {
	IDs  []string `json:"ids"`
	Text string   `json:"text"`
}

// Scores are the ranking metrics of a single query.
type Scores struct {
	Precision      float64 `json:"precision_at_k"`
	Recall         float64 `json:"recall_at_k"`
	ReciprocalRank float64 `json:"reciprocal_rank"`
	NDCG           float64 `json:"ndcg_at_k"`
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isText reports whether a relevant entry is a passage of text rather than an identifier.
// Identifiers (indexes, UUIDs, hashes) are single tokens.
func isText(relevant string) bool {
	return strings.ContainsFunc(relevant, unicode.IsSpace)
}

// Matches reports whether a retrieved item corresponds to a relevant entry. Ground truth
// may name chunk IDs, hashes or raw text, so an exact identifier match is tried first.
// Text entries then also match by containment between normalized texts.
func Matches(item Item, relevant string) bool {
	rel := strings.TrimSpace(relevant)
	if rel == "" {
		return false
	}
	for _, id := range item.IDs {
		if strings.TrimSpace(id) == rel {
			return true
		}
	}
	if !isText(rel) {
		return false
	}

	text := normalize(item.Text)
	relNorm := normalize(rel)
	if text == "" || relNorm == "" {
		return false
	}
	return strings.Contains(text, relNorm) || strings.Contains(relNorm, text)
}

func distinct(relevant []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range relevant {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func isRelevant(item Item, relevant []string) bool {
	for _, r := range relevant {
		if Matches(item, r) {
			return true
		}
	}
	return false
}

func topK(retrieved []Item, k int) []Item {
	if k < len(retrieved) {
		return retrieved[:k]
	}
	return retrieved
}

// PrecisionAtK is the share of the K slots filled by relevant items. The denominator is
// K even when fewer items were retrieved.
func PrecisionAtK(retrieved []Item, relevant []string, k int) float64 {
	if k <= 0 {
		return 0
	}
	top := topK(retrieved, k)
	if len(top) == 0 {
		return 0
	}
	relevant = distinct(relevant)
	hits := 0
	for _, item := range top {
		if isRelevant(item, relevant) {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// RecallAtK is the share of distinct relevant entries found in the top K.
func RecallAtK(retrieved []Item, relevant []string, k int) float64 {
	relevant = distinct(relevant)
	if len(relevant) == 0 || k <= 0 {
		return 0
	}
	top := topK(retrieved, k)
	found := 0
	for _, r := range relevant {
		for _, item := range top {
			if Matches(item, r) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(relevant))
}

// ReciprocalRank is 1/rank of the first relevant item anywhere in the list.
func ReciprocalRank(retrieved []Item, relevant []string) float64 {
	relevant = distinct(relevant)
	for i, item := range retrieved {
		if isRelevant(item, relevant) {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// NDCGAtK uses binary relevance with a 1/log2(rank+1) discount. Several retrieved items
// can match the same relevant entry, so the result is capped at 1.
func NDCGAtK(retrieved []Item, relevant []string, k int) float64 {
	relevant = distinct(relevant)
	if k <= 0 {
		return 0
	}

	dcg := 0.0
	for i, item := range topK(retrieved, k) {
		if isRelevant(item, relevant) {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}

	ideal := 0.0
	for i := 0; i < min(len(relevant), k); i++ {
		ideal += 1 / math.Log2(float64(i+2))
	}
	if ideal == 0 {
		return 0
	}
	return math.Min(dcg/ideal, 1)
}

// Score computes every metric at cutoff k.
func Score(retrieved []Item, relevant []string, k int) Scores {
	return Scores{
		Precision:      PrecisionAtK(retrieved, relevant, k),
		Recall:         RecallAtK(retrieved, relevant, k),
		ReciprocalRank: ReciprocalRank(retrieved, relevant),
		NDCG:           NDCGAtK(retrieved, relevant, k),
	}
}
