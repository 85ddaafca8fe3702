package rag

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

const (
	DefaultTokenBudget = 3000

	snippetLength = 200
	itemSeparator = "\n\n"
)

// Assembly is the context handed to the generator: the rendered block plus the items and
// references it was rendered from. References are numbered from 1 in block order.
type Assembly struct {
	Block      string
	Items      []types.ContextItem
	References []types.Reference
	Citations  []types.Citation
}

// Empty reports whether no context survived assembly.
func (a Assembly) Empty() bool {
	return len(a.Items) == 0
}

// Assembler renders context items into a cited text block bounded by a token budget.
type Assembler struct {
	// TokenBudget caps the estimated size of the block. Zero or less disables the cap.
	TokenBudget int
}

func NewAssembler(tokenBudget int) *Assembler {
	return &Assembler{TokenBudget: tokenBudget}
}

// EstimateTokens approximates the token count of s as one token per four characters.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

func (a *Assembler) Assemble(items []types.ContextItem) Assembly {
	out := Assembly{
		Items:      []types.ContextItem{},
		References: []types.Reference{},
		Citations:  []types.Citation{},
	}

	blocks := []string{}
	used := 0
	for i, item := range items {
		numbers := make([]int, len(item.URLs))
		for j := range item.URLs {
			numbers[j] = len(out.References) + j + 1
		}

		header := itemHeader(item, numbers)
		rendered := header + "\n" + item.Text
		cost := EstimateTokens(rendered)
		if len(blocks) > 0 {
			cost += EstimateTokens(itemSeparator)
		}

		if a.TokenBudget > 0 && used+cost > a.TokenBudget {
			if len(blocks) > 0 {
				xlog.Debug("Context budget reached", "kept", len(blocks), "dropped", len(items)-i)
				break
			}
			// a single oversized item is cut down rather than dropped
			room := a.TokenBudget*4 - utf8.RuneCountInString(header) - 1
			if room <= 0 {
				xlog.Warn("Context budget too small for any item", "budget", a.TokenBudget)
				break
			}
			item.Text = truncateRunes(item.Text, room)
			rendered = header + "\n" + item.Text
			cost = EstimateTokens(rendered)
		}

		used += cost
		blocks = append(blocks, rendered)

		itemIndex := len(out.Items)
		out.Items = append(out.Items, item)
		for j, u := range item.URLs {
			ref := types.Reference{
				Number:    numbers[j],
				URL:       u,
				Snippet:   truncateRunes(item.Text, snippetLength),
				Score:     item.Score,
				ItemIndex: itemIndex,
			}
			out.References = append(out.References, ref)
			out.Citations = append(out.Citations, types.Citation{
				Marker:    Marker(ref.Number),
				Reference: ref,
			})
		}
	}

	if len(blocks) == 0 {
		out.Block = NoContextText
		return out
	}
	out.Block = strings.Join(blocks, itemSeparator)
	return out
}

// Marker is the inline citation for the nth reference.
func Marker(n int) string {
	return "[" + strconv.Itoa(n) + "]"
}

func itemHeader(item types.ContextItem, numbers []int) string {
	var b strings.Builder
	if len(numbers) > 0 {
		parts := make([]string, len(numbers))
		for i, n := range numbers {
			parts[i] = strconv.Itoa(n)
		}
		b.WriteString("[" + strings.Join(parts, ",") + "] ")
	}

	source := item.Title
	if len(item.URLs) > 0 {
		source = domainOf(item.URLs[0])
	}
	fmt.Fprintf(&b, "[Source: %s | chunk %d]", source, item.ChunkIndex)
	return b.String()
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
