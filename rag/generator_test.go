package rag_test

import (
	"context"
	"errors"

	. "github.com/lkirch/sciencesage/rag"
	"github.com/lkirch/sciencesage/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Prompts", func() {
	DescribeTable("adapt the system prompt to the level",
		func(level types.Level, name, detail string) {
			prompt := SystemPrompt("Space exploration", level)
			Expect(prompt).To(ContainSubstring("Space exploration"))
			Expect(prompt).To(ContainSubstring(name))
			Expect(prompt).To(ContainSubstring(detail))
			Expect(prompt).To(ContainSubstring(FallbackAnswer))
			Expect(prompt).To(ContainSubstring("ONLY"))
		},
		Entry("middle school", types.LevelSimplified, "Middle School", "simple language"),
		Entry("college", types.LevelTechnical, "College", "undergraduates"),
		Entry("advanced", types.LevelAdvanced, "Advanced", "graduate students"),
	)

	It("embeds the question and the context in the user prompt", func() {
		prompt := UserPrompt("Why is Mars red?", "[1] [Source: a.com | chunk 0]\nIron oxide.", types.LevelTechnical)
		Expect(prompt).To(ContainSubstring("Question: Why is Mars red?"))
		Expect(prompt).To(ContainSubstring("Iron oxide."))
		Expect(prompt).To(ContainSubstring("College"))
	})
})

var _ = Describe("Generator", func() {
	var (
		ctx       context.Context
		completer *fakeCompleter
		generator *Generator
		assembly  Assembly
	)

	BeforeEach(func() {
		ctx = context.Background()
		completer = &fakeCompleter{answer: "  Iron oxide makes Mars red [1].  "}
		generator = NewGenerator(completer)
		assembly = NewAssembler(0).Assemble([]types.ContextItem{{Text: "Iron oxide.", URLs: []string{"http://a.com"}}})
	})

	It("returns the trimmed completion", func() {
		answer, fallback := generator.Answer(ctx, "Why is Mars red?", "Mars", types.LevelSimplified, assembly)
		Expect(fallback).To(BeFalse())
		Expect(answer).To(Equal("Iron oxide makes Mars red [1]."))
		Expect(completer.users[0]).To(ContainSubstring(assembly.Block))
	})

	It("falls back when the completion fails", func() {
		completer.err = errors.New("boom")
		answer, fallback := generator.Answer(ctx, "q", "t", types.LevelSimplified, assembly)
		Expect(fallback).To(BeTrue())
		Expect(answer).To(Equal("I don't know based on the available information."))
	})

	It("falls back on an empty completion", func() {
		completer.answer = "   "
		answer, fallback := generator.Answer(ctx, "q", "t", types.LevelSimplified, assembly)
		Expect(fallback).To(BeTrue())
		Expect(answer).To(Equal(FallbackAnswer))
	})

	Describe("Rephrase", func() {
		It("returns the rephrased query", func() {
			completer.answer = `"What makes Mars look red?"`
			out, fallback := generator.Rephrase(ctx, "why mars red")
			Expect(fallback).To(BeFalse())
			Expect(out).To(Equal("What makes Mars look red?"))
			Expect(completer.users[0]).To(ContainSubstring("why mars red"))
		})

		It("returns the original query on failure", func() {
			completer.err = errors.New("boom")
			out, fallback := generator.Rephrase(ctx, "why mars red")
			Expect(fallback).To(BeTrue())
			Expect(out).To(Equal("why mars red"))
		})

		It("returns the original query on empty output", func() {
			completer.answer = ""
			out, _ := generator.Rephrase(ctx, "why mars red")
			Expect(out).To(Equal("why mars red"))
		})
	})
})

var _ = Describe("Citations", func() {
	citations := []types.Citation{
		{Marker: "[1]", Reference: types.Reference{Number: 1, URL: "http://a.com"}},
		{Marker: "[2]", Reference: types.Reference{Number: 2, URL: "http://b.com"}},
		{Marker: "[3]", Reference: types.Reference{Number: 3, URL: "http://c.com"}},
	}

	It("finds markers in order of first use", func() {
		Expect(CitedMarkers("See [3] and [1, 2], again [3].")).To(Equal([]int{3, 1, 2}))
		Expect(CitedMarkers("no citations")).To(BeEmpty())
	})

	It("keeps only cited references", func() {
		used := ResolveCitations("Radiation [2] is a risk [7].", citations)
		Expect(used).To(HaveLen(1))
		Expect(used[0].Reference.URL).To(Equal("http://b.com"))
	})

	It("keeps every reference when nothing known is cited", func() {
		Expect(ResolveCitations("Plain answer.", citations)).To(Equal(citations))
	})
})
