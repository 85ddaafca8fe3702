package rag

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

// Generator asks the completion backend for grounded answers. It never fails: every
// completion problem degrades to FallbackAnswer.
type Generator struct {
	completer Completer
}

func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

// Answer generates an answer to query from the assembled context. The second return value
// reports whether the fallback was used.
func (g *Generator) Answer(ctx context.Context, query, topic string, level types.Level, assembly Assembly) (string, bool) {
	answer, err := g.completer.Complete(ctx,
		SystemPrompt(topic, level),
		UserPrompt(query, assembly.Block, level))
	if err != nil {
		xlog.Error("Answer generation failed", "error", err)
		return FallbackAnswer, true
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		xlog.Warn("Completion returned an empty answer")
		return FallbackAnswer, true
	}
	return answer, false
}

// Rephrase returns a clarified version of query, or query itself if that fails.
func (g *Generator) Rephrase(ctx context.Context, query string) (string, bool) {
	out, err := g.completer.Complete(ctx, "", RephrasePrompt(query))
	if err != nil {
		xlog.Warn("Query rephrasing failed", "error", err)
		return query, true
	}

	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return query, true
	}
	return out, false
}

var markerPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// CitedMarkers returns the reference numbers cited in text, in order of first use.
// Grouped markers such as [1,2] count for each number.
func CitedMarkers(text string) []int {
	seen := map[int]bool{}
	numbers := []int{}
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || seen[n] {
				continue
			}
			seen[n] = true
			numbers = append(numbers, n)
		}
	}
	return numbers
}

// ResolveCitations keeps the citations the answer actually uses. When the answer cites
// nothing known, every citation is returned so the sources stay visible.
func ResolveCitations(answer string, citations []types.Citation) []types.Citation {
	byNumber := map[int]types.Citation{}
	for _, c := range citations {
		byNumber[c.Reference.Number] = c
	}

	used := []types.Citation{}
	for _, n := range CitedMarkers(answer) {
		if c, ok := byNumber[n]; ok {
			used = append(used, c)
		}
	}
	if len(used) == 0 {
		return citations
	}
	return used
}
