package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ResultWriter appends results to a JSONL log. Each result is written with a single write
// call under a lock, so concurrent writers and readers tailing the file never see a
// partial line.
type ResultWriter struct {
	mu sync.Mutex
	f  *os.File
}

func OpenResultLog(path string) (*ResultWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening results log: %w", err)
	}
	return &ResultWriter{f: f}, nil
}

func (w *ResultWriter) Write(r Result) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.f.Write(line)
	return err
}

func (w *ResultWriter) Close() error {
	return w.f.Close()
}
