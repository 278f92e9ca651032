package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"quizdeck/internal/models"
)

var (
	// ErrNoDueCards indicates that there are no cards ready to study.
	ErrNoDueCards = errors.New("no due cards")
	// ErrFlashcardNotFound indicates a missing or foreign flashcard id.
	ErrFlashcardNotFound = errors.New("flashcard not found")
)

const flashcardColumns = `id, document_id, front, back, created_at, due,
	stability, difficulty, elapsed_days, scheduled_days, reps, lapses,
	state, last_review`

// FlashcardService reads generated flashcards and schedules study reviews
// with FSRS.
type FlashcardService struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewFlashcardService(db *sql.DB) *FlashcardService {
	return &FlashcardService{db: db, params: fsrs.DefaultParam()}
}

// ListByDocument returns a document's flashcards in insertion order.
func (s *FlashcardService) ListByDocument(ctx context.Context, documentID string) ([]models.Flashcard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+flashcardColumns+`
		FROM flashcards WHERE document_id = ? ORDER BY created_at ASC, id ASC;
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}
	defer rows.Close()

	var cards []models.Flashcard
	for rows.Next() {
		card, err := scanFlashcard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

// NextCard returns the next card the user should study: due cards first by
// due time, then unseen cards by creation time.
func (s *FlashcardService) NextCard(ctx context.Context, userID string) (*models.Flashcard, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.document_id, f.front, f.back, f.created_at, f.due,
		       f.stability, f.difficulty, f.elapsed_days, f.scheduled_days,
		       f.reps, f.lapses, f.state, f.last_review
		FROM flashcards f
		JOIN documents d ON f.document_id = d.id
		WHERE d.user_id = ? AND (f.due IS NULL OR f.due <= ?)
		ORDER BY f.due IS NULL, f.due ASC, f.created_at ASC
		LIMIT 1;
	`, userID, now)

	card, err := scanFlashcard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueCards
		}
		return nil, err
	}
	return card, nil
}

// ReviewCard applies the user's rating to the card's FSRS schedule and
// appends a review log row.
func (s *FlashcardService) ReviewCard(ctx context.Context, cardID, userID string, rating fsrs.Rating) (*models.Flashcard, *models.ReviewLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT f.id, f.document_id, f.front, f.back, f.created_at, f.due,
		       f.stability, f.difficulty, f.elapsed_days, f.scheduled_days,
		       f.reps, f.lapses, f.state, f.last_review
		FROM flashcards f
		JOIN documents d ON f.document_id = d.id
		WHERE f.id = ? AND d.user_id = ?;
	`, cardID, userID)
	card, err := scanFlashcard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrFlashcardNotFound
		}
		return nil, nil, err
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(card.ToFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		return nil, nil, fmt.Errorf("rating %d not supported", rating)
	}
	card.ApplyFSRSCard(info.Card)

	if _, err := tx.ExecContext(ctx, `
		UPDATE flashcards
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?,
		    scheduled_days = ?, reps = ?, lapses = ?, state = ?, last_review = ?
		WHERE id = ?;
	`, card.Due, card.Stability, card.Difficulty, card.ElapsedDays,
		card.ScheduledDays, card.Reps, card.Lapses, card.State, card.LastReview,
		card.ID); err != nil {
		return nil, nil, fmt.Errorf("update flashcard %s: %w", card.ID, err)
	}

	logEntry := &models.ReviewLog{
		FlashcardID:   card.ID,
		Rating:        int(info.ReviewLog.Rating),
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
		ElapsedDays:   int(info.ReviewLog.ElapsedDays),
		State:         int(info.ReviewLog.State),
		ReviewedAt:    now,
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO review_logs (flashcard_id, rating, scheduled_days, elapsed_days, state, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, logEntry.FlashcardID, logEntry.Rating, logEntry.ScheduledDays,
		logEntry.ElapsedDays, logEntry.State, logEntry.ReviewedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert review log: %w", err)
	}
	logEntry.ID, _ = res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit review: %w", err)
	}
	return card, logEntry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlashcard(row rowScanner) (*models.Flashcard, error) {
	card := &models.Flashcard{}
	if err := row.Scan(
		&card.ID,
		&card.DocumentID,
		&card.Front,
		&card.Back,
		&card.CreatedAt,
		&card.Due,
		&card.Stability,
		&card.Difficulty,
		&card.ElapsedDays,
		&card.ScheduledDays,
		&card.Reps,
		&card.Lapses,
		&card.State,
		&card.LastReview,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan flashcard: %w", err)
	}
	return card, nil
}
