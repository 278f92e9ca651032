package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"quizdeck/internal/models"
)

// ExportService renders flashcard sets into downloadable PDF documents.
type ExportService struct{}

func NewExportService() *ExportService {
	return &ExportService{}
}

// RenderFlashcardsPDF produces a page-flowed PDF: a title block, then for
// each flashcard a numbered header, the emphasized front, and the back, in
// insertion order.
func (s *ExportService) RenderFlashcardsPDF(flashcards []models.Flashcard, documentTitle string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 14)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(0, 0, 128)
	pdf.MultiCell(0, 10, tr(documentTitle), "", "C", false)
	pdf.Ln(6)

	for i, card := range flashcards {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetFillColor(220, 220, 220)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 9, fmt.Sprintf("Flashcard %d", i+1), "", 1, "C", true, 0, "")
		pdf.Ln(2)

		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, tr(card.Front), "", "L", false)
		pdf.Ln(1)

		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(0, 0, 128)
		pdf.MultiCell(0, 5.5, tr(card.Back), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render flashcards pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFilename derives the download filename from the document title.
func ExportFilename(documentTitle string) string {
	return "flashcards_" + strings.ReplaceAll(documentTitle, " ", "_") + ".pdf"
}
