package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quizdeck/internal/models"
)

// Generator produces flashcard and question prototypes from document text.
// The production implementation is AIService; tests substitute stubs.
type Generator interface {
	GenerateFlashcards(ctx context.Context, documentText string) ([]FlashcardPrototype, error)
	GenerateQuestions(ctx context.Context, flashcards []models.Flashcard) ([]QuestionPrototype, error)
}

// GenerationService coordinates the external model call and persistence of
// the produced flashcards and quizzes. A failed generation persists nothing;
// a successful batch is committed in one transaction.
type GenerationService struct {
	db         *sql.DB
	ai         Generator
	flashcards *FlashcardService
}

func NewGenerationService(db *sql.DB, ai Generator, flashcards *FlashcardService) *GenerationService {
	return &GenerationService{db: db, ai: ai, flashcards: flashcards}
}

// GenerateFlashcards produces a new batch of flashcards for the document
// and persists them. Regeneration appends; existing cards are untouched.
func (s *GenerationService) GenerateFlashcards(ctx context.Context, doc *models.Document) ([]models.Flashcard, error) {
	protos, err := s.ai.GenerateFlashcards(ctx, doc.Content)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	cards := make([]models.Flashcard, 0, len(protos))
	for _, proto := range protos {
		card := models.Flashcard{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Front:      proto.Front,
			Back:       proto.Back,
			CreatedAt:  now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flashcards (id, document_id, front, back, created_at)
			VALUES (?, ?, ?, ?, ?);
		`, card.ID, card.DocumentID, card.Front, card.Back, card.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert flashcard: %w", err)
		}
		cards = append(cards, card)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit flashcards: %w", err)
	}
	return cards, nil
}

// GenerateQuiz creates a quiz with generated questions for the document.
// If the document has no flashcards yet, flashcard generation runs first,
// synchronously, and the questions are built from the fresh batch.
func (s *GenerationService) GenerateQuiz(ctx context.Context, doc *models.Document, userID string) (*models.Quiz, error) {
	cards, err := s.flashcards.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		cards, err = s.GenerateFlashcards(ctx, doc)
		if err != nil {
			return nil, err
		}
	}

	protos, err := s.ai.GenerateQuestions(ctx, cards)
	if err != nil {
		return nil, err
	}

	quiz := &models.Quiz{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		UserID:     userID,
		Title:      "Quiz on " + doc.Title,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO quizzes (id, document_id, user_id, title, created_at)
		VALUES (?, ?, ?, ?, ?);
	`, quiz.ID, quiz.DocumentID, quiz.UserID, quiz.Title, quiz.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	for _, proto := range protos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questions (id, quiz_id, question_text, correct_answer, option1, option2, option3)
			VALUES (?, ?, ?, ?, ?, ?, ?);
		`, uuid.NewString(), quiz.ID, proto.QuestionText, proto.CorrectAnswer,
			proto.Option1, proto.Option2, proto.Option3); err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit quiz: %w", err)
	}
	return quiz, nil
}
