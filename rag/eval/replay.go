package eval

import (
	"context"
	"fmt"

	"github.com/lkirch/sciencesage/rag/types"
)

// ReplayRetriever serves the retrievals recorded in a previous results log, so metrics can
// be recomputed (for instance at another K) without calling any backend.
type ReplayRetriever struct {
	rows map[string]Result
}

func NewReplayRetriever(results []Result) *ReplayRetriever {
	r := &ReplayRetriever{rows: map[string]Result{}}
	for _, res := range results {
		if res.Error != "" {
			continue
		}
		// the latest row for a question wins
		r.rows[replayKey(res.Query, res.Topic)] = res
	}
	return r
}

// LoadReplayRetriever reads a results log.
func LoadReplayRetriever(path string) (*ReplayRetriever, error) {
	results, err := LoadResults(path)
	if err != nil {
		return nil, err
	}
	return NewReplayRetriever(results), nil
}

func replayKey(query, topic string) string {
	return normalize(query) + "\x00" + normalize(topic)
}

func (r *ReplayRetriever) lookup(query, topic string) (Result, error) {
	res, ok := r.rows[replayKey(query, topic)]
	if !ok {
		return Result{}, fmt.Errorf("no recorded retrieval for %q", query)
	}
	return res, nil
}

func (r *ReplayRetriever) Retrieve(ctx context.Context, query, topic string) (*types.Response, error) {
	res, err := r.lookup(query, topic)
	if err != nil {
		return nil, err
	}
	resp := types.NewEmptyResponse("")
	for _, item := range res.Retrieved {
		resp.Context = append(resp.Context, types.ContextItem{
			Text:       item.Text,
			PassageIDs: append([]string{}, item.IDs...),
		})
	}
	return resp, nil
}

// RetrieveAnswer returns the recorded answer along with the recorded context.
func (r *ReplayRetriever) RetrieveAnswer(ctx context.Context, query, topic string, level types.Level) (*types.Response, error) {
	resp, err := r.Retrieve(ctx, query, topic)
	if err != nil {
		return nil, err
	}
	resp.Answer = r.rows[replayKey(query, topic)].Answer
	return resp, nil
}

func (r *ReplayRetriever) Len() int {
	return len(r.rows)
}
