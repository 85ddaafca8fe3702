package eval

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/mudler/xlog"
)

// Stat summarizes one metric across rows.
type Stat struct {
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Summary is the aggregate of a results log.
type Summary struct {
	Rows   int `json:"rows"`
	Errors int `json:"errors"`
	// Skipped counts dataset rows that could not be evaluated at all.
	Skipped int             `json:"skipped"`
	Metrics map[string]Stat `json:"metrics"`
}

// NewStat computes mean, sample standard deviation, min and max. The deviation is 0 for
// fewer than two values.
func NewStat(values []float64) Stat {
	if len(values) == 0 {
		return Stat{}
	}

	s := Stat{Count: len(values), Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))

	if len(values) > 1 {
		sq := 0.0
		for _, v := range values {
			sq += (v - s.Mean) * (v - s.Mean)
		}
		s.Stdev = math.Sqrt(sq / float64(len(values)-1))
	}
	return s
}

// Summarize aggregates results. Rows that failed are counted but not scored.
func Summarize(results []Result) Summary {
	summary := Summary{Metrics: map[string]Stat{}}
	values := map[string][]float64{}

	for _, r := range results {
		summary.Rows++
		if r.Error != "" {
			summary.Errors++
			continue
		}
		values["precision_at_k"] = append(values["precision_at_k"], r.Precision)
		values["recall_at_k"] = append(values["recall_at_k"], r.Recall)
		values["reciprocal_rank"] = append(values["reciprocal_rank"], r.ReciprocalRank)
		values["ndcg_at_k"] = append(values["ndcg_at_k"], r.NDCG)
		if r.ExactMatch != nil {
			v := 0.0
			if *r.ExactMatch {
				v = 1
			}
			values["exact_match"] = append(values["exact_match"], v)
		}
	}

	for name, v := range values {
		summary.Metrics[name] = NewStat(v)
	}
	return summary
}

// LoadResults reads a results log. Lines that cannot be decoded are skipped.
func LoadResults(path string) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results := []Result{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r Result
		if err := json.Unmarshal(raw, &r); err != nil {
			xlog.Warn("Skipping unreadable result", "file", path, "line", line, "error", err)
			continue
		}
		results = append(results, r)
	}
	return results, scanner.Err()
}

// WriteSummary stores the summary as indented JSON.
func WriteSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Print renders the summary as a table.
func (s Summary) Print(w io.Writer) {
	header := color.New(color.Bold)
	good := color.New(color.FgGreen)
	fair := color.New(color.FgYellow)
	poor := color.New(color.FgRed)

	header.Fprintf(w, "Evaluated %d rows (%d errors, %d skipped)\n", s.Rows, s.Errors, s.Skipped)
	header.Fprintf(w, "%-16s %8s %8s %8s %8s %6s\n", "metric", "mean", "stdev", "min", "max", "n")

	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := s.Metrics[name]
		c := poor
		switch {
		case st.Mean >= 0.7:
			c = good
		case st.Mean >= 0.4:
			c = fair
		}
		fmt.Fprintf(w, "%-16s ", name)
		c.Fprintf(w, "%8.3f", st.Mean)
		fmt.Fprintf(w, " %8.3f %8.3f %8.3f %6d\n", st.Stdev, st.Min, st.Max, st.Count)
	}
}
