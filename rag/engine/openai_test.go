package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/lkirch/sciencesage/rag/engine"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"
)

var _ = Describe("OpenAI backends", func() {
	var (
		server *httptest.Server
		client *openai.Client
		reply  string
	)

	BeforeEach(func() {
		reply = "  Mars has two moons [1].  "
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Input []string `json:"input"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			data := []map[string]any{}
			// reversed on purpose
			for i := len(req.Input) - 1; i >= 0; i-- {
				data = append(data, map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float32{float32(i), float32(len(req.Input[i]))},
				})
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
		})
		mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": reply},
				}},
			})
		})
		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)

		config := openai.DefaultConfig("sk-test")
		config.BaseURL = server.URL + "/v1"
		client = openai.NewClientWithConfig(config)
	})

	It("orders batch embeddings by index", func() {
		embedder := NewOpenAIEmbedder(client, "text-embedding-3-small")
		out, err := embedder.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(Equal([][]float32{{0, 1}, {1, 2}, {2, 3}}))
	})

	It("rejects empty input", func() {
		embedder := NewOpenAIEmbedder(client, "text-embedding-3-small")
		_, err := embedder.EmbedBatch(context.Background(), nil)
		Expect(err).To(HaveOccurred())
	})

	It("returns the trimmed completion", func() {
		completer := NewOpenAICompleter(client, "gpt-4o-mini", 256)
		out, err := completer.Complete(context.Background(), "system", "user")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(Equal("Mars has two moons [1]."))
	})

	It("surfaces API errors", func() {
		server.Close()
		completer := NewOpenAICompleter(client, "gpt-4o-mini", 256)
		_, err := completer.Complete(context.Background(), "system", "user")
		Expect(err).To(HaveOccurred())
	})
})
