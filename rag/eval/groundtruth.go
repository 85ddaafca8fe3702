package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

const groundTruthPrompt = `You are a helpful assistant creating a ground truth evaluation dataset for a RAG system that explains space science.
Given a chunk of text, write one question answered by the chunk for each of these audience levels: "Middle School", "College" and "Advanced".
Questions must be answerable from the chunk alone, and the answers must be phrased for the level.
Return a JSON list of objects with the fields "query", "expected_answer" and "difficulty_level".`

// DefaultGroundTruthSamples is how many chunks are drawn after one chunk per topic.
const DefaultGroundTruthSamples = 80

var jsonBlock = regexp.MustCompile("(?s)```(?:json)?(.*?)```")

// GroundTruthRow is a generated question with the chunk that answers it. LoadDataset
// reads these rows back.
type GroundTruthRow struct {
	ChunkID  string `json:"chunk_id"`
	Topic    string `json:"topic"`
	Text     string `json:"text"`
	Level    string `json:"level"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QAPair is one generated question as returned by the completer.
type QAPair struct {
	Query           string `json:"query"`
	ExpectedAnswer  string `json:"expected_answer"`
	DifficultyLevel string `json:"difficulty_level"`
}

// GroundTruthOptions controls chunk sampling.
type GroundTruthOptions struct {
	// Samples chunks are drawn from the ones left after taking one per topic.
	Samples int
	Seed    uint64
}

// GroundTruthBuilder asks a completer for question/answer pairs about indexed chunks.
type GroundTruthBuilder struct {
	completer interfaces.Completer
	opts      GroundTruthOptions
}

func NewGroundTruthBuilder(completer interfaces.Completer, opts GroundTruthOptions) *GroundTruthBuilder {
	if opts.Samples < 0 {
		opts.Samples = 0
	}
	return &GroundTruthBuilder{completer: completer, opts: opts}
}

// Sample picks one chunk per topic, in topic order, then Samples more at random.
func (g *GroundTruthBuilder) Sample(passages []types.Passage) []types.Passage {
	rng := rand.New(rand.NewPCG(g.opts.Seed, g.opts.Seed))

	byTopic := map[string][]int{}
	for i, p := range passages {
		topic := passageTopic(p)
		byTopic[topic] = append(byTopic[topic], i)
	}
	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	slices.Sort(topics)

	picked := map[int]bool{}
	sample := []types.Passage{}
	for _, t := range topics {
		idx := byTopic[t][rng.IntN(len(byTopic[t]))]
		picked[idx] = true
		sample = append(sample, passages[idx])
	}

	rest := []int{}
	for i := range passages {
		if !picked[i] {
			rest = append(rest, i)
		}
	}
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	for _, idx := range rest[:min(g.opts.Samples, len(rest))] {
		sample = append(sample, passages[idx])
	}
	return sample
}

// Build generates rows for the sampled passages. A chunk whose completion fails or cannot
// be parsed contributes no rows; only context cancellation stops the run.
func (g *GroundTruthBuilder) Build(ctx context.Context, passages []types.Passage) ([]GroundTruthRow, error) {
	rows := []GroundTruthRow{}
	for i, p := range g.Sample(passages) {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		generated, err := g.Generate(ctx, p)
		if err != nil {
			xlog.Warn("Skipping chunk", "chunk", p.ID, "error", err)
			continue
		}
		for j := range generated {
			if generated[j].ChunkID == "" {
				generated[j].ChunkID = strconv.Itoa(i)
			}
		}
		rows = append(rows, generated...)
	}
	xlog.Info("Generated ground truth", "chunks", len(passages), "rows", len(rows))
	return rows, nil
}

// Generate asks for one question per level about a single passage. Pairs with an unknown
// level, an empty question, or a level already answered are dropped.
func (g *GroundTruthBuilder) Generate(ctx context.Context, p types.Passage) ([]GroundTruthRow, error) {
	content, err := g.completer.Complete(ctx, groundTruthPrompt, p.Text)
	if err != nil {
		return nil, err
	}
	pairs, err := ParseQAPairs(content)
	if err != nil {
		return nil, err
	}

	rows := []GroundTruthRow{}
	seen := map[types.Level]bool{}
	for _, pair := range pairs {
		level, err := types.ParseLevel(pair.DifficultyLevel)
		if err != nil || seen[level] || strings.TrimSpace(pair.Query) == "" {
			continue
		}
		seen[level] = true
		rows = append(rows, GroundTruthRow{
			ChunkID:  p.ID,
			Topic:    passageTopic(p),
			Text:     p.Text,
			Level:    level.DisplayName(),
			Question: strings.TrimSpace(pair.Query),
			Answer:   strings.TrimSpace(pair.ExpectedAnswer),
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no usable question in completion")
	}
	return rows, nil
}

// ParseQAPairs reads the JSON list from a completion, preferring a fenced code block.
func ParseQAPairs(content string) ([]QAPair, error) {
	body := content
	if m := jsonBlock.FindStringSubmatch(content); m != nil {
		body = m[1]
	}
	body = strings.TrimSpace(body)

	var pairs []QAPair
	if err := json.Unmarshal([]byte(body), &pairs); err != nil {
		var single QAPair
		if json.Unmarshal([]byte(body), &single) != nil {
			return nil, fmt.Errorf("completion is not a question list: %w", err)
		}
		pairs = []QAPair{single}
	}
	return pairs, nil
}

// WriteGroundTruth replaces path with one JSON row per line.
func WriteGroundTruth(path string, rows []GroundTruthRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func passageTopic(p types.Passage) string {
	if len(p.Topics) > 0 {
		return p.Topics[0]
	}
	return p.Title
}
