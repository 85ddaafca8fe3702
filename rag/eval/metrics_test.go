package eval_test

import (
	"math"

	. "github.com/lkirch/sciencesage/rag/eval"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func item(id, text string) Item {
	return Item{IDs: []string{id}, Text: text}
}

var _ = Describe("Metrics", func() {
	retrieved := []Item{
		item("doc-a", "Mars is the fourth planet."),
		item("doc-b", "The Moon orbits Earth."),
		item("doc-c", "Laika flew on Sputnik 2."),
	}

	It("scores a partially relevant list", func() {
		s := Score(retrieved, []string{"doc-b", "doc-d"}, 3)
		Expect(s.Precision).To(BeNumerically("~", 1.0/3, 1e-9))
		Expect(s.Recall).To(BeNumerically("~", 0.5, 1e-9))
		Expect(s.ReciprocalRank).To(BeNumerically("~", 0.5, 1e-9))

		idcg := 1 + 1/math.Log2(3)
		Expect(s.NDCG).To(BeNumerically("~", (1/math.Log2(3))/idcg, 1e-9))
	})

	It("gives a perfect score when the top K are exactly the relevant items", func() {
		s := Score(retrieved, []string{"doc-a", "doc-b"}, 2)
		Expect(s.Precision).To(Equal(1.0))
		Expect(s.Recall).To(Equal(1.0))
		Expect(s.ReciprocalRank).To(Equal(1.0))
		Expect(s.NDCG).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("divides precision by K even when fewer items were retrieved", func() {
		Expect(PrecisionAtK(retrieved[:2], []string{"doc-a", "doc-b"}, 5)).To(BeNumerically("~", 0.4, 1e-9))
	})

	DescribeTable("reciprocal rank",
		func(relevant []string, expected float64) {
			Expect(ReciprocalRank(retrieved, relevant)).To(BeNumerically("~", expected, 1e-9))
		},
		Entry("first", []string{"doc-a"}, 1.0),
		Entry("second", []string{"doc-b"}, 0.5),
		Entry("third", []string{"doc-c"}, 1.0/3),
		Entry("missing", []string{"doc-z"}, 0.0),
	)

	It("looks past K for the reciprocal rank", func() {
		s := Score(retrieved, []string{"doc-c"}, 1)
		Expect(s.Precision).To(Equal(0.0))
		Expect(s.ReciprocalRank).To(BeNumerically("~", 1.0/3, 1e-9))
	})

	It("returns zeros for an empty relevant set", func() {
		s := Score(retrieved, nil, 3)
		Expect(s).To(Equal(Scores{}))
	})

	It("returns zeros for K=0", func() {
		s := Score(retrieved, []string{"doc-a"}, 0)
		Expect(s.Precision).To(Equal(0.0))
		Expect(s.Recall).To(Equal(0.0))
		Expect(s.NDCG).To(Equal(0.0))
	})

	It("counts recall over distinct relevant entries", func() {
		Expect(RecallAtK(retrieved, []string{"doc-a", "doc-a", " doc-a "}, 3)).To(Equal(1.0))
	})

	It("caps nDCG at 1 when several items match one entry", func() {
		dup := []Item{item("x", "one"), item("x", "two"), item("x", "three")}
		Expect(NDCGAtK(dup, []string{"x"}, 3)).To(Equal(1.0))
		Expect(RecallAtK(dup, []string{"x"}, 3)).To(Equal(1.0))
	})

	Describe("Matches", func() {
		mars := item("chunk-1", "Mars is the fourth planet from the Sun.")

		DescribeTable("matching rules",
			func(relevant string, expected bool) {
				Expect(Matches(mars, relevant)).To(Equal(expected))
			},
			Entry("exact id", "chunk-1", true),
			Entry("id with spaces", "  chunk-1 ", true),
			Entry("id prefix is not an id match", "chunk", false),
			Entry("relevant text inside item", "the FOURTH planet", true),
			Entry("item text inside relevant", "Fact: Mars is the fourth planet from the Sun. It is red.", true),
			Entry("unrelated text", "Venus is hot", false),
			Entry("empty", "", false),
			Entry("blank", "   ", false),
		)

		It("does not match identifiers by containment", func() {
			voyager := item("chunk-12", "Voyager 1 was launched in 1977.")
			Expect(Matches(voyager, "7")).To(BeFalse())
			Expect(Matches(voyager, "1977")).To(BeFalse())
			Expect(Matches(voyager, "3f2a9c1e-7b4d-4c1a-9f3e-2d6b8a0c5e71")).To(BeFalse())
			Expect(PrecisionAtK([]Item{voyager}, []string{"7"}, 1)).To(Equal(0.0))
			Expect(Matches(voyager, "launched in 1977")).To(BeTrue())
		})

		It("never matches an item without text through containment", func() {
			Expect(Matches(Item{IDs: []string{"a"}}, "anything")).To(BeFalse())
		})
	})
})
