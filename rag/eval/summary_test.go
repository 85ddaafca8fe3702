package eval_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/lkirch/sciencesage/rag/eval"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Summary", func() {
	It("computes sample statistics", func() {
		s := NewStat([]float64{1, 2, 3})
		Expect(s.Mean).To(Equal(2.0))
		Expect(s.Stdev).To(BeNumerically("~", 1.0, 1e-9))
		Expect(s.Min).To(Equal(1.0))
		Expect(s.Max).To(Equal(3.0))
		Expect(s.Count).To(Equal(3))
	})

	It("uses a zero deviation for a single value", func() {
		Expect(NewStat([]float64{0.7})).To(Equal(Stat{Mean: 0.7, Min: 0.7, Max: 0.7, Count: 1}))
		Expect(NewStat(nil)).To(Equal(Stat{}))
	})

	It("leaves failed rows out of the statistics", func() {
		yes, no := true, false
		results := []Result{
			{Scores: Scores{Precision: 1, Recall: 1, ReciprocalRank: 1, NDCG: 1}, ExactMatch: &yes},
			{Scores: Scores{Precision: 0, Recall: 0}, ExactMatch: &no},
			{Error: "backend down"},
		}
		s := Summarize(results)
		Expect(s.Rows).To(Equal(3))
		Expect(s.Errors).To(Equal(1))
		Expect(s.Metrics["precision_at_k"].Mean).To(Equal(0.5))
		Expect(s.Metrics["precision_at_k"].Count).To(Equal(2))
		Expect(s.Metrics["exact_match"].Mean).To(Equal(0.5))
		Expect(s.Metrics).To(HaveKey("ndcg_at_k"))
	})

	It("omits exact match when no answers were generated", func() {
		s := Summarize([]Result{{Scores: Scores{Recall: 1}}})
		Expect(s.Metrics).ToNot(HaveKey("exact_match"))
	})

	It("round trips through the results log and the summary file", func() {
		dir := GinkgoT().TempDir()
		logPath := filepath.Join(dir, "results.jsonl")
		w, err := OpenResultLog(logPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Write(Result{Query: "a", Scores: Scores{Recall: 1}})).To(Succeed())
		Expect(w.Write(Result{Query: "b", Scores: Scores{Recall: 0.5}})).To(Succeed())
		Expect(w.Close()).To(Succeed())
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
		Expect(err).ToNot(HaveOccurred())
		_, err = f.WriteString("garbage\n")
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		results, err := LoadResults(logPath)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(2))

		summaryPath := filepath.Join(dir, "summary.json")
		summary := Summarize(results)
		summary.Skipped = 3
		Expect(WriteSummary(summaryPath, summary)).To(Succeed())

		data, err := os.ReadFile(summaryPath)
		Expect(err).ToNot(HaveOccurred())
		var s Summary
		Expect(json.Unmarshal(data, &s)).To(Succeed())
		Expect(s.Rows).To(Equal(2))
		Expect(s.Skipped).To(Equal(3))
		Expect(string(data)).To(ContainSubstring(`"skipped": 3`))
		Expect(s.Metrics["recall_at_k"].Mean).To(Equal(0.75))
	})

	It("prints a table", func() {
		var buf bytes.Buffer
		Summarize([]Result{{Scores: Scores{Precision: 0.2}}}).Print(&buf)
		Expect(buf.String()).To(ContainSubstring("Evaluated 1 rows (0 errors, 0 skipped)"))
		Expect(buf.String()).To(ContainSubstring("precision_at_k"))
	})
})
