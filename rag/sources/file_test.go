package sources_test

import (
	"os"
	"path/filepath"

	. "github.com/lkirch/sciencesage/rag/sources"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("File Sources", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sources_test_*")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		Expect(os.WriteFile(filepath.Join(dir, "mars.txt"), []byte("Mars is red."), 0644)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(dir, "notes"), 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "notes", "moon.md"), []byte("# Moon\nGray."), 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0644)).To(Succeed())
	})

	It("reads text files", func() {
		doc, err := ReadFile(filepath.Join(dir, "mars.txt"))
		Expect(err).ToNot(HaveOccurred())
		Expect(doc.Title).To(Equal("mars"))
		Expect(doc.Text).To(Equal("Mars is red."))
		Expect(doc.Source()).To(Equal(filepath.Join(dir, "mars.txt")))
	})

	It("rejects unsupported files", func() {
		_, err := ReadFile(filepath.Join(dir, "image.png"))
		Expect(err).To(MatchError(ContainSubstring("unsupported file type")))
	})

	It("fails on missing files", func() {
		_, err := ReadFile(filepath.Join(dir, "nope.txt"))
		Expect(err).To(HaveOccurred())
	})

	It("walks directories", func() {
		docs, err := ReadDir(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(HaveLen(2))
	})

	It("routes paths to files and directories", func() {
		docs, err := SourceRouter(filepath.Join(dir, "notes", "moon.md"))
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Text).To(ContainSubstring("Gray."))

		docs, err = SourceRouter(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(HaveLen(2))

		_, err = SourceRouter(filepath.Join(dir, "missing"))
		Expect(err).To(HaveOccurred())
	})
})
