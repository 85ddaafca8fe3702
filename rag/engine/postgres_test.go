package engine_test

import (
	"context"
	"fmt"
	"os"
	"time"

	. "github.com/lkirch/sciencesage/rag/engine"
	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/lkirch/sciencesage/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PostgresIndex", func() {
	var (
		ctx            context.Context
		databaseURL    string
		collectionName string
	)

	BeforeEach(func() {
		ctx = context.Background()
		collectionName = fmt.Sprintf("test_collection_%d", time.Now().UnixNano())
		databaseURL = os.Getenv("DATABASE_URL")
	})

	Describe("NewPostgresIndex", func() {
		It("fails with empty database URL", func() {
			idx, err := NewPostgresIndex(ctx, collectionName, "", 3)
			Expect(err).To(HaveOccurred())
			Expect(idx).To(BeNil())
			Expect(err.Error()).To(ContainSubstring("DATABASE_URL is required"))
		})

		It("fails with invalid dimensions", func() {
			idx, err := NewPostgresIndex(ctx, collectionName, "postgres://localhost/db", 0)
			Expect(err).To(HaveOccurred())
			Expect(idx).To(BeNil())
		})

		It("fails with invalid database URL", func() {
			idx, err := NewPostgresIndex(ctx, collectionName, "invalid://url", 3)
			Expect(err).To(HaveOccurred())
			Expect(idx).To(BeNil())
		})
	})

	Describe("with a database", func() {
		var idx *PostgresIndex

		BeforeEach(func() {
			if databaseURL == "" {
				Skip("DATABASE_URL is not set")
			}
			var err error
			idx, err = NewPostgresIndex(ctx, collectionName, databaseURL, 3)
			Expect(err).ToNot(HaveOccurred())
			DeferCleanup(func() {
				Expect(idx.Reset(ctx)).To(Succeed())
				idx.Close()
			})
		})

		It("stores and searches passages", func() {
			err := idx.Upsert(ctx, []types.Passage{
				{ID: "a", Text: "Mars has two moons.", Topics: []string{"planets"}, SourceURL: "https://nasa.gov/mars"},
				{ID: "b", Text: "The ISS orbits Earth.", Topics: []string{"space_stations"}},
			}, [][]float32{{1, 0, 0}, {0, 1, 0}})
			Expect(err).ToNot(HaveOccurred())

			count, err := idx.Count(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(2))

			candidates, err := idx.Search(ctx, []float32{1, 0.1, 0}, interfaces.SearchFilter{}, 5)
			Expect(err).ToNot(HaveOccurred())
			Expect(candidates).To(HaveLen(2))
			Expect(candidates[0].ID).To(Equal("a"))
			Expect(candidates[0].SourceURL).To(Equal("https://nasa.gov/mars"))

			candidates, err = idx.Search(ctx, []float32{1, 0, 0}, interfaces.SearchFilter{Topic: "space_stations"}, 5)
			Expect(err).ToNot(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].ID).To(Equal("b"))
		})

		It("rejects a different embedding size for the same collection", func() {
			_, err := NewPostgresIndex(ctx, collectionName, databaseURL, 4)
			Expect(err).To(HaveOccurred())
		})
	})
})
