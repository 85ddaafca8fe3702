package metrics_test

import (
	"io"
	"net/http/httptest"
	"time"

	. "github.com/lkirch/sciencesage/pkg/metrics"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func scrape(m *Metrics) string {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	Expect(err).ToNot(HaveOccurred())
	return string(body)
}

var _ = Describe("Metrics", func() {
	It("counts requests and fallbacks", func() {
		m := New()
		m.CountRequest("answer", OutcomeAnswered)
		m.CountRequest("answer", OutcomeAnswered)
		m.CountRequest("answer", OutcomeNoResults)
		m.CountFallback("answer")

		body := scrape(m)
		Expect(body).To(ContainSubstring(`sciencesage_requests_total{operation="answer",outcome="answered"} 2`))
		Expect(body).To(ContainSubstring(`sciencesage_requests_total{operation="answer",outcome="no_results"} 1`))
		Expect(body).To(ContainSubstring(`sciencesage_fallbacks_total{operation="answer"} 1`))
	})

	It("tolerates a nil receiver", func() {
		var m *Metrics
		Expect(func() {
			m.ObserveStage(StageEmbed, time.Now())
			m.CountRequest("answer", OutcomeAnswered)
			m.CountFallback("answer")
			m.ObserveCandidates(3)
		}).ToNot(Panic())
	})

	It("serves the text exposition format", func() {
		m := New()
		m.ObserveStage(StageSearch, time.Now())

		Expect(scrape(m)).To(ContainSubstring(`sciencesage_stage_duration_seconds_count{stage="search"} 1`))
	})

	It("keeps separate registries per instance", func() {
		Expect(func() {
			New()
			New()
		}).ToNot(Panic())
	})
})
