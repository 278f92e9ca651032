package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
}

type Document struct {
	ID        string
	UserID    string
	Title     string
	Filepath  string
	Content   string
	CreatedAt time.Time
}

// Flashcard is a front/back pair generated from a document. The scheduling
// fields drive the spaced repetition study queue and stay at their zero
// values until the card is first reviewed.
type Flashcard struct {
	ID            string
	DocumentID    string
	Front         string
	Back          string
	CreatedAt     time.Time
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
}

type Quiz struct {
	ID         string
	DocumentID string
	UserID     string
	Title      string
	CreatedAt  time.Time

	// DocumentTitle is populated by list queries that join documents.
	DocumentTitle string
}

// Question is a 4-way multiple choice item: one correct answer plus three
// distractors. The displayed options are a shuffled permutation of the four.
type Question struct {
	ID            string
	QuizID        string
	QuestionText  string
	CorrectAnswer string
	Option1       string
	Option2       string
	Option3       string
}

// Options returns the unshuffled option multiset, correct answer first.
func (q *Question) Options() []string {
	return []string{q.CorrectAnswer, q.Option1, q.Option2, q.Option3}
}

// QuizAttempt is an append-only record of one completed quiz session.
type QuizAttempt struct {
	ID             string
	QuizID         string
	UserID         string
	Score          int
	TotalQuestions int
	CompletedAt    time.Time
}

// Percent is the attempt's score as a percentage of its own total.
func (a *QuizAttempt) Percent() float64 {
	if a.TotalQuestions <= 0 {
		return 0
	}
	return float64(a.Score) / float64(a.TotalQuestions) * 100
}

type ReviewLog struct {
	ID            int64
	FlashcardID   string
	Rating        int
	ScheduledDays int
	ElapsedDays   int
	State         int
	ReviewedAt    time.Time
}

func (c *Flashcard) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   uint64(max(c.ElapsedDays, 0)),
		ScheduledDays: uint64(max(c.ScheduledDays, 0)),
		Reps:          uint64(max(c.Reps, 0)),
		Lapses:        uint64(max(c.Lapses, 0)),
		State:         fsrs.State(max(c.State, 0)),
	}
	if c.Due.Valid {
		card.Due = c.Due.Time
	}
	if c.LastReview.Valid {
		card.LastReview = c.LastReview.Time
	}
	return card
}

func (c *Flashcard) ApplyFSRSCard(f fsrs.Card) {
	c.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	c.Stability = f.Stability
	c.Difficulty = f.Difficulty
	c.ElapsedDays = int(f.ElapsedDays)
	c.ScheduledDays = int(f.ScheduledDays)
	c.Reps = int(f.Reps)
	c.Lapses = int(f.Lapses)
	c.State = int(f.State)
	c.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}
