package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/lkirch/sciencesage/pkg/client"
	"github.com/lkirch/sciencesage/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		c        *Client
		lastBody AnswerRequest
		status   int
	)

	BeforeEach(func() {
		status = http.StatusOK
		lastBody = AnswerRequest{}
		mux := http.NewServeMux()
		mux.HandleFunc("/api/answer", func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			lastBody = AnswerRequest{}
			Expect(json.NewDecoder(r.Body).Decode(&lastBody)).To(Succeed())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status != http.StatusOK {
				json.NewEncoder(w).Encode(map[string]string{"error": "answer unavailable"})
				return
			}
			resp := types.NewEmptyResponse("Mars is red [1].")
			resp.Context = append(resp.Context, types.ContextItem{Text: "Mars is red.", PassageIDs: []string{"p1"}})
			json.NewEncoder(w).Encode(resp)
		})
		mux.HandleFunc("/api/retrieve", func(w http.ResponseWriter, r *http.Request) {
			lastBody = AnswerRequest{}
			Expect(json.NewDecoder(r.Body).Decode(&lastBody)).To(Succeed())
			json.NewEncoder(w).Encode(types.NewEmptyResponse(""))
		})
		mux.HandleFunc("/api/rephrase", func(w http.ResponseWriter, r *http.Request) {
			var req RephraseRequest
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			json.NewEncoder(w).Encode(RephraseRequest{Query: "Why is " + req.Query + " red?"})
		})
		mux.HandleFunc("/api/topics", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]string{"Exploration of Mars"})
		})
		mux.HandleFunc("/api/levels", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]Level{{ID: "tier1", Name: "Middle School"}})
		})
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)

		c = NewClient(server.URL + "/")
	})

	It("asks for an answer", func() {
		resp, err := c.RetrieveAnswer(context.Background(), "Why is Mars red?", "Exploration of Mars", types.LevelSimplified)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Answer).To(Equal("Mars is red [1]."))
		Expect(resp.Context[0].PassageIDs).To(Equal([]string{"p1"}))
		Expect(lastBody).To(Equal(AnswerRequest{Query: "Why is Mars red?", Topic: "Exploration of Mars", Level: "tier1"}))
	})

	It("maps 503 to ErrUnavailable", func() {
		status = http.StatusServiceUnavailable
		_, err := c.RetrieveAnswer(context.Background(), "q", "", types.LevelTechnical)
		Expect(err).To(MatchError(ErrUnavailable))
	})

	It("reports other failures with the status", func() {
		status = http.StatusBadRequest
		_, err := c.RetrieveAnswer(context.Background(), "q", "", types.LevelTechnical)
		Expect(err).To(HaveOccurred())
		Expect(err).ToNot(MatchError(ErrUnavailable))
		Expect(err.Error()).To(ContainSubstring("400"))
	})

	It("retrieves without a level", func() {
		resp, err := c.Retrieve(context.Background(), "q", "Animals in space")
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Context).To(BeEmpty())
		Expect(lastBody.Level).To(BeEmpty())
		Expect(lastBody.Topic).To(Equal("Animals in space"))
	})

	It("rephrases", func() {
		q, err := c.Rephrase(context.Background(), "Mars")
		Expect(err).ToNot(HaveOccurred())
		Expect(q).To(Equal("Why is Mars red?"))
	})

	It("lists topics and levels", func() {
		topics, err := c.Topics(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(topics).To(Equal([]string{"Exploration of Mars"}))

		levels, err := c.Levels(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(levels).To(Equal([]Level{{ID: "tier1", Name: "Middle School"}}))
	})

	It("checks health", func() {
		Expect(c.Healthy(context.Background())).To(BeTrue())
		server.Close()
		Expect(c.Healthy(context.Background())).To(BeFalse())
	})
})
