package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// ExtractText returns the plain text content of all pages of a PDF file.
func (s *PDFService) ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, reader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return builder.String(), nil
}
