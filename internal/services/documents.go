package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"quizdeck/internal/models"
)

// ErrDocumentNotFound indicates a missing or foreign document id.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentService stores uploaded PDFs and their extracted text.
type DocumentService struct {
	db        *sql.DB
	pdf       *PDFService
	uploadDir string
}

func NewDocumentService(db *sql.DB, pdf *PDFService, uploadDir string) *DocumentService {
	return &DocumentService{db: db, pdf: pdf, uploadDir: uploadDir}
}

// Upload persists the PDF under a collision-resistant name, extracts its
// text, and inserts the document row. An unreadable PDF leaves no row and
// no stored file behind.
func (s *DocumentService) Upload(ctx context.Context, userID, originalName string, src io.Reader) (*models.Document, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure upload dir: %w", err)
	}

	storedPath := filepath.Join(s.uploadDir, uuid.NewString()+"_"+filepath.Base(originalName))
	out, err := os.Create(storedPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("close file: %w", err)
	}

	content, err := s.pdf.ExtractText(storedPath)
	if err != nil {
		_ = os.Remove(storedPath)
		return nil, err
	}

	doc := &models.Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     originalName,
		Filepath:  storedPath,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, title, filepath, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, doc.ID, doc.UserID, doc.Title, doc.Filepath, doc.Content, doc.CreatedAt); err != nil {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// ListByUser returns the user's documents, newest first. Content is not
// loaded for listings.
func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, filepath, created_at
		FROM documents WHERE user_id = ? ORDER BY created_at DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Filepath, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetByID loads one document including its extracted text.
func (s *DocumentService) GetByID(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, filepath, content, created_at
		FROM documents WHERE id = ?;
	`, id)

	var doc models.Document
	if err := row.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Filepath, &doc.Content, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// GetForUser loads a document and enforces ownership.
func (s *DocumentService) GetForUser(ctx context.Context, id, userID string) (*models.Document, error) {
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}
