package upload

import (
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("writes the file and returns its name", func() {
			path, err := storage.Save("s1_receipt.pdf", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("s1_receipt.pdf"))
			Expect(filepath.Join(tmpDir, "s1_receipt.pdf")).To(BeAnExistingFile())
		})

		It("keeps files inside the staging directory", func() {
			path, err := storage.Save("../../escape.pdf", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("escape.pdf"))
			Expect(filepath.Join(tmpDir, "escape.pdf")).To(BeAnExistingFile())
		})
	})

	Describe("Get", func() {
		It("returns the saved data", func() {
			_, err := storage.Save("a.pdf", []byte("content"))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get("a.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("content"))
		})

		It("fails for missing files", func() {
			_, err := storage.Get("missing.pdf")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			_, err := storage.Save("a.pdf", []byte("content"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("a.pdf")).To(Succeed())
			Expect(filepath.Join(tmpDir, "a.pdf")).NotTo(BeAnExistingFile())
		})

		It("fails for missing files", func() {
			Expect(storage.Delete("missing.pdf")).NotTo(Succeed())
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleaning names",
		func(in, want string) {
			Expect(sanitizeFilename(in)).To(Equal(want))
		},
		Entry("plain", "receipt.pdf", "receipt.pdf"),
		Entry("special characters", "Rec#ei(pt)!.PDF", "Receipt.pdf"),
		Entry("collapsed spaces", "my   receipt .pdf", "my receipt.pdf"),
		Entry("nothing left", "###.pdf", "receipt.pdf"),
		Entry("long names", strings.Repeat("a", 60)+".pdf", strings.Repeat("a", 50)+".pdf"),
	)
})
