package rag

import (
	"crypto/sha256"
	"slices"
	"sort"
	"strings"

	"github.com/lkirch/sciencesage/rag/types"
)

const DefaultTopN = 5

// textKey identifies passages with the same text. Only surrounding whitespace is ignored:
// folding case could merge distinct facts.
func textKey(text string) [sha256.Size]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(text)))
}

// Merge collapses ranked results sharing the same text into context items, keeping the best
// score and every source, and returns the topN best items. It expects ranked to be sorted by
// combined score and must see all of it, so truncation happens after merging.
func Merge(ranked []types.RankedResult, topN int) []types.ContextItem {
	if topN <= 0 {
		topN = DefaultTopN
	}

	items := []types.ContextItem{}
	groups := map[[sha256.Size]byte]int{}

	for _, r := range ranked {
		key := textKey(r.Text)
		idx, seen := groups[key]
		if !seen {
			groups[key] = len(items)
			items = append(items, types.ContextItem{
				Text:       strings.TrimSpace(r.Text),
				Title:      r.Title,
				ChunkIndex: r.ChunkIndex,
				PassageIDs: []string{},
				URLs:       []string{},
				Score:      r.CombinedScore,
			})
			idx = len(items) - 1
		}

		item := &items[idx]
		if r.CombinedScore > item.Score {
			item.Score = r.CombinedScore
		}
		if r.ID != "" && !slices.Contains(item.PassageIDs, r.ID) {
			item.PassageIDs = append(item.PassageIDs, r.ID)
		}
		if r.SourceURL != "" && !slices.Contains(item.URLs, r.SourceURL) {
			item.URLs = append(item.URLs, r.SourceURL)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})

	if len(items) > topN {
		items = items[:topN]
	}
	return items
}
