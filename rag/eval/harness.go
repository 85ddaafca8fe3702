package eval

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultK       = 5
	DefaultWorkers = 4
)

// Retriever returns the context a question would be answered from.
type Retriever interface {
	Retrieve(ctx context.Context, query, topic string) (*types.Response, error)
}

// Answerer also generates the answer.
type Answerer interface {
	RetrieveAnswer(ctx context.Context, query, topic string, level types.Level) (*types.Response, error)
}

// Result is one row of the results log.
type Result struct {
	Query          string   `json:"query"`
	Topic          string   `json:"topic,omitempty"`
	Level          string   `json:"level,omitempty"`
	ExpectedAnswer string   `json:"expected_answer,omitempty"`
	RelevantIDs    []string `json:"relevant_ids"`
	Retrieved      []Item   `json:"retrieved"`
	K              int      `json:"k"`
	Scores
	Answer     string    `json:"answer,omitempty"`
	ExactMatch *bool     `json:"exact_match,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink receives results as they are produced. *ResultWriter is the file-backed one.
type Sink interface {
	Write(Result) error
}

type Options struct {
	K       int
	Workers int
	// Answers also generates an answer per row and records exact_match.
	Answers bool
}

// RunReport counts what a run did.
type RunReport struct {
	Evaluated int
	Failed    int
}

// Harness evaluates a dataset against a Retriever.
type Harness struct {
	retriever Retriever
	opts      Options
}

func NewHarness(retriever Retriever, opts Options) *Harness {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Harness{retriever: retriever, opts: opts}
}

// Run evaluates every record with a bounded pool of workers and hands each result to sink.
// A failing query is recorded as a row with an error and does not stop the run; a sink
// failure or a cancelled context does.
func (h *Harness) Run(ctx context.Context, records []Record, sink Sink) (RunReport, error) {
	if h.opts.Answers {
		if _, ok := h.retriever.(Answerer); !ok {
			xlog.Warn("Retriever cannot generate answers, skipping exact match")
		}
	}

	var (
		mu     sync.Mutex
		report RunReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Workers)
	for i, record := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := h.evaluate(gctx, record)
			if err := sink.Write(result); err != nil {
				return err
			}

			mu.Lock()
			report.Evaluated++
			if result.Error != "" {
				report.Failed++
			}
			mu.Unlock()

			xlog.Debug("Evaluated query", "row", i, "query", record.Query, "recall", result.Recall, "error", result.Error)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	xlog.Info("Evaluation finished", "evaluated", report.Evaluated, "failed", report.Failed)
	return report, nil
}

func (h *Harness) evaluate(ctx context.Context, record Record) Result {
	result := Result{
		Query:          record.Query,
		Topic:          record.Topic,
		Level:          record.Level,
		ExpectedAnswer: record.ExpectedAnswer,
		RelevantIDs:    record.RelevantIDs,
		Retrieved:      []Item{},
		K:              h.opts.K,
	}
	var (
		resp *types.Response
		err  error
	)
	answerer, canAnswer := h.retriever.(Answerer)
	if h.opts.Answers && canAnswer {
		resp, err = answerer.RetrieveAnswer(ctx, record.Query, record.Topic, recordLevel(record))
	} else {
		resp, err = h.retriever.Retrieve(ctx, record.Query, record.Topic)
	}
	if err != nil {
		xlog.Warn("Query failed", "query", record.Query, "error", err)
		result.Error = err.Error()
		result.Timestamp = time.Now().UTC()
		return result
	}

	result.Retrieved = ItemsOf(resp.Context)
	result.Scores = Score(result.Retrieved, record.RelevantIDs, h.opts.K)

	if h.opts.Answers && canAnswer {
		result.Answer = resp.Answer
		if record.ExpectedAnswer != "" {
			match := ExactMatch(resp.Answer, record.ExpectedAnswer)
			result.ExactMatch = &match
		}
	}
	result.Timestamp = time.Now().UTC()
	return result
}

func recordLevel(record Record) types.Level {
	if record.Level == "" {
		return types.LevelTechnical
	}
	level, err := types.ParseLevel(record.Level)
	if err != nil {
		xlog.Warn("Unknown level in dataset, using default", "level", record.Level, "query", record.Query)
		return types.LevelTechnical
	}
	return level
}

// ItemsOf converts retrieved context into evaluation items.
func ItemsOf(context []types.ContextItem) []Item {
	items := make([]Item, 0, len(context))
	for _, c := range context {
		items = append(items, Item{
			IDs:  append([]string{}, c.PassageIDs...),
			Text: c.Text,
		})
	}
	return items
}

// ExactMatch compares answers ignoring case and surrounding space.
func ExactMatch(answer, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(expected))
}
