package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"quizdeck/internal/models"
	"quizdeck/internal/services"
	"quizdeck/internal/session"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	progress, err := s.quizzes.ComputeProgress(r.Context(), sess.UserID)
	if err != nil {
		s.logger.Error("compute progress", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	docs, err := s.documents.ListByUser(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(docs) > 5 {
		docs = docs[:5]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username":           sess.Username,
		"quizzes_taken":      progress.TotalAttempts,
		"questions_answered": progress.TotalQuestions,
		"average_score":      progress.AverageScorePercent,
		"recent_documents":   documentList(docs),
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.documents.ListByUser(r.Context(), sess.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": documentList(docs)})
	case http.MethodPost:
		s.handleUploadDocument(w, r, sess)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleUploadDocument stores the PDF, extracts its text, and immediately
// generates flashcards for it. A generation failure is reported alongside
// the created document rather than failing the upload.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "only PDF files are supported")
		return
	}

	doc, err := s.documents.Upload(r.Context(), sess.UserID, header.Filename, file)
	if err != nil {
		s.logger.Error("upload document", zap.String("name", header.Filename), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("error processing PDF: %v", err))
		return
	}
	sess.SetActiveDocument(doc.ID)

	payload := map[string]any{"document": documentView(doc)}
	cards, err := s.generation.GenerateFlashcards(r.Context(), doc)
	if err != nil {
		s.logger.Warn("flashcard generation failed",
			zap.String("document_id", doc.ID), zap.Error(err))
		payload["flashcards"] = []any{}
		payload["generation_error"] = generationMessage(err)
	} else {
		payload["flashcards"] = flashcardList(cards)
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleDocumentActions(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/documents/"), "/")
	parts := strings.Split(path, "/")

	doc, err := s.documents.GetForUser(r.Context(), parts[0], sess.UserID)
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch {
	case len(parts) == 1:
		s.handleDocumentDetail(w, r, sess, doc)
	case len(parts) == 2 && parts[1] == "flashcards":
		s.handleGenerateFlashcards(w, r, doc)
	case len(parts) == 2 && parts[1] == "quiz":
		s.handleGenerateQuiz(w, r, sess, doc)
	case len(parts) == 3 && parts[1] == "flashcards" && parts[2] == "pdf":
		s.handleExportFlashcards(w, r, doc)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDocumentDetail(w http.ResponseWriter, r *http.Request, sess *session.Session, doc *models.Document) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	cards, err := s.flashcards.ListByDocument(r.Context(), doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sess.SetActiveDocument(doc.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"document":   documentView(doc),
		"content":    doc.Content,
		"flashcards": flashcardList(cards),
	})
}

func (s *Server) handleGenerateFlashcards(w http.ResponseWriter, r *http.Request, doc *models.Document) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	cards, err := s.generation.GenerateFlashcards(r.Context(), doc)
	if err != nil {
		s.logger.Warn("flashcard generation failed",
			zap.String("document_id", doc.ID), zap.Error(err))
		writeError(w, generationStatus(err), generationMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"flashcards": flashcardList(cards)})
}

func (s *Server) handleExportFlashcards(w http.ResponseWriter, r *http.Request, doc *models.Document) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	cards, err := s.flashcards.ListByDocument(r.Context(), doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(cards) == 0 {
		writeError(w, http.StatusNotFound, "no flashcards found for this document")
		return
	}

	pdfBytes, err := s.export.RenderFlashcardsPDF(cards, doc.Title)
	if err != nil {
		s.logger.Error("export flashcards", zap.String("document_id", doc.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", services.ExportFilename(doc.Title)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdfBytes)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	progress, err := s.quizzes.ComputeProgress(r.Context(), sess.UserID)
	if err != nil {
		s.logger.Error("compute progress", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func generationStatus(err error) int {
	if errors.Is(err, services.ErrAIUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// generationMessage converts the generation failure variants into user
// messages without losing the upstream/parse distinction.
func generationMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrAIUnavailable):
		return "generation is not configured on this server"
	case errors.Is(err, services.ErrMalformedResponse):
		return "the generation service returned an unusable response, try again"
	case errors.Is(err, services.ErrUpstream):
		return "the generation service could not be reached, try again later"
	default:
		return "generation failed"
	}
}

func documentView(doc *models.Document) map[string]any {
	return map[string]any{
		"id":         doc.ID,
		"title":      doc.Title,
		"created_at": doc.CreatedAt,
	}
}

func documentList(docs []models.Document) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for i := range docs {
		out = append(out, documentView(&docs[i]))
	}
	return out
}

func flashcardList(cards []models.Flashcard) []map[string]any {
	out := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		out = append(out, map[string]any{
			"id":    card.ID,
			"front": card.Front,
			"back":  card.Back,
		})
	}
	return out
}
