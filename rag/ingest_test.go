package rag_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/lkirch/sciencesage/rag"
	"github.com/lkirch/sciencesage/rag/engine"
	"github.com/lkirch/sciencesage/rag/sources"
	"github.com/lkirch/sciencesage/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ingester", func() {
	var (
		ctx      context.Context
		embedder *fakeEmbedder
		index    *engine.ChromemIndex
		ingester *Ingester
	)

	doc := sources.Document{
		Title: "Mars",
		URL:   "http://example.com/mars",
		Text:  strings.Repeat("Mars radiation is a hazard for long travel. ", 10),
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &fakeEmbedder{}
		var err error
		index, err = engine.NewChromemIndex("ingest", "")
		Expect(err).ToNot(HaveOccurred())
		ingester = NewIngester(embedder, index, IngestOptions{BatchSize: 2, ChunkSize: 100, ChunkOverlap: 20})
	})

	It("chunks documents with offsets and stable ids", func() {
		passages := ingester.DocumentPassages(doc, []string{"Exploration of Mars"})
		Expect(len(passages)).To(BeNumerically(">", 3))
		for i, p := range passages {
			Expect(p.ChunkIndex).To(Equal(i))
			Expect(p.SourceURL).To(Equal(doc.URL))
			Expect(p.Topics).To(Equal([]string{"Exploration of Mars"}))
			Expect(p.ID).To(Equal(PassageID(doc.URL, i, p.Text)))
			Expect(p.CharEnd - p.CharStart).To(Equal(len(p.Text)))
		}
		Expect(ingester.DocumentPassages(doc, nil)[0].ID).To(Equal(passages[0].ID))
	})

	It("embeds and stores in batches", func() {
		passages := ingester.DocumentPassages(doc, []string{"Exploration of Mars"})
		stored, err := ingester.IngestDocuments(ctx, []sources.Document{doc}, []string{"Exploration of Mars"})
		Expect(err).ToNot(HaveOccurred())
		Expect(stored).To(Equal(len(passages)))
		Expect(int(embedder.batches.Load())).To(Equal((len(passages) + 1) / 2))

		count, err := index.Count(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(len(passages)))
	})

	It("replaces passages when a source is ingested again", func() {
		_, err := ingester.IngestDocuments(ctx, []sources.Document{doc}, nil)
		Expect(err).ToNot(HaveOccurred())
		first, _ := index.Count(ctx)

		_, err = ingester.IngestDocuments(ctx, []sources.Document{doc}, nil)
		Expect(err).ToNot(HaveOccurred())
		second, _ := index.Count(ctx)
		Expect(second).To(Equal(first))
	})

	It("assigns ids to passages that have none", func() {
		stored, err := ingester.IngestPassages(ctx, []types.Passage{
			{Text: "Dogs flew on Sputnik 2.", Title: "Laika"},
			{ID: "given", Text: "The Moon is dry."},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(stored).To(Equal(2))
		count, _ := index.Count(ctx)
		Expect(count).To(Equal(2))
	})

	It("stops at the first failing batch", func() {
		embedder.err = os.ErrDeadlineExceeded
		stored, err := ingester.IngestPassages(ctx, []types.Passage{{Text: "a"}, {Text: "b"}, {Text: "c"}})
		Expect(err).To(HaveOccurred())
		Expect(stored).To(Equal(0))
	})
})

var _ = Describe("SourceManager", func() {
	It("ingests due sources once per interval", func() {
		ctx := context.Background()
		dir, err := os.MkdirTemp("", "source_manager_*")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
		path := filepath.Join(dir, "mars.txt")
		Expect(os.WriteFile(path, []byte("Mars radiation exposure."), 0644)).To(Succeed())

		embedder := &fakeEmbedder{}
		index, err := engine.NewChromemIndex("sources", "")
		Expect(err).ToNot(HaveOccurred())
		sm := NewSourceManager(NewIngester(embedder, index, IngestOptions{}))

		Expect(sm.AddSource(path, []string{"Exploration of Mars"}, time.Hour)).To(Succeed())
		Expect(sm.AddSource(path, nil, time.Hour)).ToNot(Succeed())
		Expect(sm.AddSource("", nil, time.Hour)).ToNot(Succeed())
		Expect(sm.AddSource("http://example.com", nil, 0)).ToNot(Succeed())

		sm.UpdateDue(ctx)
		count, err := index.Count(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(1))
		Expect(sm.Sources()[0].LastUpdate.IsZero()).To(BeFalse())

		sm.UpdateDue(ctx)
		Expect(embedder.batches.Load()).To(Equal(int32(1)))
	})

	It("keeps going when a source fails", func() {
		embedder := &fakeEmbedder{}
		index, err := engine.NewChromemIndex("sources-fail", "")
		Expect(err).ToNot(HaveOccurred())
		sm := NewSourceManager(NewIngester(embedder, index, IngestOptions{}))
		Expect(sm.AddSource("/does/not/exist.txt", nil, time.Hour)).To(Succeed())

		sm.UpdateDue(context.Background())
		Expect(sm.Sources()[0].LastUpdate.IsZero()).To(BeTrue())
	})
})
