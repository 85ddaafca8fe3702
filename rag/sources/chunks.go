package sources

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if single != "" {
			*s = stringList{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

type chunkRecord struct {
	UUID       string          `json:"uuid"`
	ID         json.RawMessage `json:"id"`
	Text       string          `json:"text"`
	Title      string          `json:"title"`
	SourceURL  string          `json:"source_url"`
	Source     string          `json:"source"`
	Topics     stringList      `json:"topics"`
	Topic      stringList      `json:"topic"`
	Categories stringList      `json:"categories"`
	ChunkIndex int             `json:"chunk_index"`
	CharStart  int             `json:"char_start"`
	CharEnd    int             `json:"char_end"`
	CreatedAt  string          `json:"created_at"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r chunkRecord) passage() types.Passage {
	id := r.UUID
	if id == "" && len(r.ID) > 0 && string(r.ID) != "null" {
		var s string
		if err := json.Unmarshal(r.ID, &s); err == nil {
			id = s
		} else {
			id = string(r.ID)
		}
	}

	topics := []string{}
	for _, list := range []stringList{r.Topics, r.Topic, r.Categories} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t != "" && !slices.Contains(topics, t) {
				topics = append(topics, t)
			}
		}
	}

	sourceURL := r.SourceURL
	if sourceURL == "" && (strings.HasPrefix(r.Source, "http://") || strings.HasPrefix(r.Source, "https://")) {
		sourceURL = r.Source
	}

	p := types.Passage{
		ID:         id,
		Text:       r.Text,
		Title:      r.Title,
		SourceURL:  sourceURL,
		Topics:     topics,
		ChunkIndex: r.ChunkIndex,
		CharStart:  r.CharStart,
		CharEnd:    r.CharEnd,
	}
	if r.CreatedAt != "" {
		p.CreatedAt = parseTime(r.CreatedAt)
	}
	return p
}

// LoadChunks reads preprocessed passages, one JSON object per line. Lines that cannot be
// decoded or carry no text are skipped; their number is returned alongside the passages.
// Passages without an identifier are returned with an empty ID.
func LoadChunks(path string) ([]types.Passage, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	passages := []types.Passage{}
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var record chunkRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			xlog.Warn("Skipping malformed chunk", "file", path, "line", line, "error", err)
			skipped++
			continue
		}
		if strings.TrimSpace(record.Text) == "" {
			xlog.Warn("Skipping chunk without text", "file", path, "line", line)
			skipped++
			continue
		}
		passages = append(passages, record.passage())
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading %s: %w", path, err)
	}

	return passages, skipped, nil
}
