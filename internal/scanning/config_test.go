package scanning

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("New", func() {
	It("creates an Ollama scanner", func() {
		s, err := New(context.Background(), Config{Type: TypeOllama, OllamaURL: "http://ollama:11434/", OllamaModel: "bakllava"})
		Expect(err).NotTo(HaveOccurred())
		o, ok := s.(*Ollama)
		Expect(ok).To(BeTrue())
		Expect(o.baseURL).To(Equal("http://ollama:11434"))
		Expect(o.model).To(Equal("bakllava"))
		Expect(s.Close()).To(Succeed())
	})

	It("requires a Gemini API key", func() {
		GinkgoT().Setenv("GEMINI_API_KEY", "")
		_, err := New(context.Background(), Config{Type: TypeGemini})
		Expect(err).To(MatchError(ContainSubstring("API key is required")))
	})

	It("rejects unknown scanner types", func() {
		_, err := New(context.Background(), Config{Type: "tesseract"})
		Expect(err).To(MatchError(ContainSubstring(`invalid scanner type "tesseract"`)))
	})
})
