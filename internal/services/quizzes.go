package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"quizdeck/internal/models"
)

var (
	// ErrQuizNotFound indicates a missing or foreign quiz id.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidAttempt indicates an attempt violating score bounds.
	ErrInvalidAttempt = errors.New("invalid attempt: score must be within 0..total_questions and total_questions > 0")
)

// Progress summarizes a user's quiz attempt history.
type Progress struct {
	TotalAttempts       int            `json:"total_attempts"`
	TotalCorrect        int            `json:"total_correct"`
	TotalQuestions      int            `json:"total_questions"`
	AverageScorePercent float64        `json:"average_score"`
	Attempts            []AttemptPoint `json:"attempts"`
}

// AttemptPoint is one point of the score-over-time series.
type AttemptPoint struct {
	CompletedAt time.Time `json:"date"`
	Percent     float64   `json:"score"`
}

// QuizService reads quizzes and questions, records completed attempts, and
// aggregates progress statistics.
type QuizService struct {
	db *sql.DB
}

func NewQuizService(db *sql.DB) *QuizService {
	return &QuizService{db: db}
}

// ListByUser returns the user's quizzes with their source document titles,
// newest first.
func (s *QuizService) ListByUser(ctx context.Context, userID string) ([]models.Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.document_id, q.user_id, q.title, q.created_at, d.title
		FROM quizzes q
		JOIN documents d ON q.document_id = d.id
		WHERE q.user_id = ?
		ORDER BY q.created_at DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []models.Quiz
	for rows.Next() {
		var quiz models.Quiz
		if err := rows.Scan(&quiz.ID, &quiz.DocumentID, &quiz.UserID, &quiz.Title,
			&quiz.CreatedAt, &quiz.DocumentTitle); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

// GetForUser loads a quiz and enforces ownership.
func (s *QuizService) GetForUser(ctx context.Context, id, userID string) (*models.Quiz, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, user_id, title, created_at
		FROM quizzes WHERE id = ? AND user_id = ?;
	`, id, userID)

	var quiz models.Quiz
	if err := row.Scan(&quiz.ID, &quiz.DocumentID, &quiz.UserID, &quiz.Title, &quiz.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("scan quiz: %w", err)
	}
	return &quiz, nil
}

// GetQuestions returns a quiz's questions in insertion order.
func (s *QuizService) GetQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quiz_id, question_text, correct_answer, option1, option2, option3
		FROM questions WHERE quiz_id = ? ORDER BY rowid ASC;
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.QuestionText, &q.CorrectAnswer,
			&q.Option1, &q.Option2, &q.Option3); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// SaveAttempt appends one completed attempt. Attempts are never mutated.
func (s *QuizService) SaveAttempt(ctx context.Context, quizID, userID string, score, totalQuestions int) (*models.QuizAttempt, error) {
	if totalQuestions <= 0 || score < 0 || score > totalQuestions {
		return nil, ErrInvalidAttempt
	}

	attempt := &models.QuizAttempt{
		ID:             uuid.NewString(),
		QuizID:         quizID,
		UserID:         userID,
		Score:          score,
		TotalQuestions: totalQuestions,
		CompletedAt:    time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_attempts (id, quiz_id, user_id, score, total_questions, completed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, attempt.ID, attempt.QuizID, attempt.UserID, attempt.Score,
		attempt.TotalQuestions, attempt.CompletedAt); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return attempt, nil
}

// CountAttempts returns the number of attempts recorded for a quiz by a user.
func (s *QuizService) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = ? AND user_id = ?;
	`, quizID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// ComputeProgress aggregates the user's attempt history. The average is the
// mean of per-attempt percentages, not the pooled correct/total ratio, so a
// short quiz weighs the same as a long one. Zero attempts yield zeros.
func (s *QuizService) ComputeProgress(ctx context.Context, userID string) (*Progress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT score, total_questions, completed_at
		FROM quiz_attempts
		WHERE user_id = ?
		ORDER BY completed_at ASC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	progress := &Progress{Attempts: []AttemptPoint{}}
	var percentSum float64
	for rows.Next() {
		var attempt models.QuizAttempt
		if err := rows.Scan(&attempt.Score, &attempt.TotalQuestions, &attempt.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		percent := attempt.Percent()
		progress.TotalAttempts++
		progress.TotalCorrect += attempt.Score
		progress.TotalQuestions += attempt.TotalQuestions
		percentSum += percent
		progress.Attempts = append(progress.Attempts, AttemptPoint{
			CompletedAt: attempt.CompletedAt,
			Percent:     round2(percent),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if progress.TotalAttempts > 0 {
		progress.AverageScorePercent = round2(percentSum / float64(progress.TotalAttempts))
	}
	return progress, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
