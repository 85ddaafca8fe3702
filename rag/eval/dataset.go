package eval

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mudler/xlog"
)

// ErrMalformedRecord is returned for ground-truth rows that cannot be evaluated.
var ErrMalformedRecord = errors.New("malformed evaluation record")

// Record is a ground-truth row.
type Record struct {
	Query          string   `json:"query"`
	ExpectedAnswer string   `json:"expected_answer,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	Level          string   `json:"level,omitempty"`
	RelevantIDs    []string `json:"relevant_ids"`
}

// flexibleStrings decodes a string, a number, or an array of them.
type flexibleStrings []string

func (f *flexibleStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var values []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
	} else {
		values = []json.RawMessage{data}
	}

	for _, v := range values {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			*f = append(*f, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			*f = append(*f, n.String())
			continue
		}
		return fmt.Errorf("unsupported identifier %s", string(v))
	}
	return nil
}

// rawRecord accepts the field names used by the different ground-truth generators.
type rawRecord struct {
	Query              string          `json:"query"`
	Question           string          `json:"question"`
	ExpectedAnswer     string          `json:"expected_answer"`
	Answer             string          `json:"answer"`
	Topic              string          `json:"topic"`
	Level              string          `json:"level"`
	RelevantIDs        flexibleStrings `json:"relevant_ids"`
	RelevantContextIDs flexibleStrings `json:"relevant_context_ids"`
	GroundTruthChunks  flexibleStrings `json:"ground_truth_chunks"`
	ChunkID            flexibleStrings `json:"chunk_id"`
	Text               string          `json:"text"`
}

// ParseRecord decodes one dataset line. Rows without a question or without any relevant
// entry are rejected with ErrMalformedRecord.
func ParseRecord(line []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	r := Record{
		Query:          firstNonEmpty(raw.Query, raw.Question),
		ExpectedAnswer: firstNonEmpty(raw.ExpectedAnswer, raw.Answer),
		Topic:          strings.TrimSpace(raw.Topic),
		Level:          strings.TrimSpace(raw.Level),
	}
	if r.Query == "" {
		return Record{}, fmt.Errorf("%w: missing query", ErrMalformedRecord)
	}

	for _, list := range []flexibleStrings{raw.RelevantIDs, raw.RelevantContextIDs, raw.GroundTruthChunks, raw.ChunkID} {
		r.RelevantIDs = append(r.RelevantIDs, list...)
	}
	r.RelevantIDs = distinct(r.RelevantIDs)
	// rows generated from a single chunk carry its text, usable when no id is given
	if len(r.RelevantIDs) == 0 && strings.TrimSpace(raw.Text) != "" {
		r.RelevantIDs = []string{strings.TrimSpace(raw.Text)}
	}
	if len(r.RelevantIDs) == 0 {
		return Record{}, fmt.Errorf("%w: no relevant ids", ErrMalformedRecord)
	}

	return r, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// LoadDataset reads a JSONL ground-truth dataset. Malformed rows are skipped with a warning
// and counted; duplicated questions are reported but kept.
func LoadDataset(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	records := []Record{}
	skipped := 0
	seen := map[string]int{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		r, err := ParseRecord(raw)
		if err != nil {
			xlog.Warn("Skipping ground-truth row", "file", path, "line", line, "error", err)
			skipped++
			continue
		}

		key := normalize(r.Query)
		if first, dup := seen[key]; dup {
			xlog.Warn("Duplicate question in dataset", "line", line, "first_line", first, "query", r.Query)
		} else {
			seen[key] = line
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading %s: %w", path, err)
	}

	if skipped > 0 {
		xlog.Warn("Skipped malformed ground-truth rows", "skipped", skipped, "kept", len(records))
	}
	xlog.Info("Loaded dataset", "file", path, "records", len(records), "skipped", skipped)
	return records, skipped, nil
}
