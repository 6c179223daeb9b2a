package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "receipts"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("should write the file and return its stored name", func() {
			name, err := storage.Save("r.jpg", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("r.jpg"))

			data, err := os.ReadFile(filepath.Join(tmpDir, "receipts", "r.jpg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("data"))
		})

		It("should leave no temporary file behind", func() {
			_, err := storage.Save("r.jpg", []byte("data"))
			Expect(err).NotTo(HaveOccurred())

			entries, err := os.ReadDir(filepath.Join(tmpDir, "receipts"))
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("should keep names inside the storage directory", func() {
			name, err := storage.Save("../../escape.jpg", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("escape.jpg"))
			Expect(filepath.Join(tmpDir, "escape.jpg")).NotTo(BeAnExistingFile())
		})

		It("rejects an empty name", func() {
			_, err := storage.Save("", []byte("data"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("r.pdf", []byte("%PDF"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return its contents", func() {
				data, err := storage.Get("r.pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("%PDF"))
			})
		})

		When("the file does not exist", func() {
			It("returns an error", func() {
				_, err := storage.Get("missing.pdf")
				Expect(err).To(MatchError(ContainSubstring("reading file")))
			})
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			_, err := storage.Save("r.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove the file", func() {
			Expect(storage.Delete("r.png")).To(Succeed())
			_, err := storage.Get("r.png")
			Expect(err).To(HaveOccurred())
		})

		It("returns an error the second time", func() {
			Expect(storage.Delete("r.png")).To(Succeed())
			Expect(storage.Delete("r.png")).To(MatchError(ContainSubstring("deleting file")))
		})
	})
})
