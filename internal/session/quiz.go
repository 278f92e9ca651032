package session

import (
	"errors"
	"math/rand"

	"quizdeck/internal/models"
)

var (
	// ErrQuizNotStarted is returned for quiz operations before Start.
	ErrQuizNotStarted = errors.New("no quiz in progress")
	// ErrQuizCompleted is returned when answering a finished quiz.
	ErrQuizCompleted = errors.New("quiz already completed")
	// ErrNoQuestions is returned when starting a quiz with no questions.
	ErrNoQuestions = errors.New("quiz has no questions")
)

// QuizState tracks the linear quiz-taking flow.
type QuizState int

const (
	StateNotStarted QuizState = iota
	StateInProgress
	StateCompleted
)

// ShuffledQuestion is a question as presented to the taker: the four options
// permuted, with the correct answer retained separately from the ordering.
type ShuffledQuestion struct {
	ID            string
	QuestionText  string
	Options       []string
	CorrectAnswer string
}

// QuizRun drives one attempt through a quiz's questions. It holds the
// shuffled question sequence, the answers recorded so far, and a running
// score. The attempt is persisted by the caller at most once per successful
// insert, gated by NeedsCommit/MarkCommitted.
type QuizRun struct {
	QuizID    string
	questions []ShuffledQuestion
	index     int
	answers   map[string]string
	score     int
	state     QuizState
	committed bool
}

// NewQuizRun shuffles each question's options independently and uniformly
// and returns a run in the InProgress state.
func NewQuizRun(quizID string, questions []models.Question) (*QuizRun, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	shuffled := make([]ShuffledQuestion, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		options := q.Options()
		rand.Shuffle(len(options), func(i, j int) {
			options[i], options[j] = options[j], options[i]
		})
		shuffled = append(shuffled, ShuffledQuestion{
			ID:            q.ID,
			QuestionText:  q.QuestionText,
			Options:       options,
			CorrectAnswer: q.CorrectAnswer,
		})
	}
	return &QuizRun{
		QuizID:    quizID,
		questions: shuffled,
		answers:   make(map[string]string, len(shuffled)),
		state:     StateInProgress,
	}, nil
}

func (r *QuizRun) State() QuizState { return r.state }

// Current returns the question awaiting an answer.
func (r *QuizRun) Current() (ShuffledQuestion, error) {
	switch r.state {
	case StateInProgress:
		return r.questions[r.index], nil
	case StateCompleted:
		return ShuffledQuestion{}, ErrQuizCompleted
	default:
		return ShuffledQuestion{}, ErrQuizNotStarted
	}
}

// Index returns the zero-based position of the current question.
func (r *QuizRun) Index() int { return r.index }

// SubmitAnswer records the selected option for the current question,
// scores it by case-sensitive exact match against the correct answer, and
// advances. Answering the last question transitions the run to Completed.
func (r *QuizRun) SubmitAnswer(selected string) error {
	if r.state == StateCompleted {
		return ErrQuizCompleted
	}
	if r.state != StateInProgress {
		return ErrQuizNotStarted
	}

	current := r.questions[r.index]
	r.answers[current.ID] = selected
	if selected == current.CorrectAnswer {
		r.score++
	}
	r.index++
	if r.index >= len(r.questions) {
		r.state = StateCompleted
	}
	return nil
}

func (r *QuizRun) Score() int { return r.score }

func (r *QuizRun) Total() int { return len(r.questions) }

// Answer returns the recorded selection for a question id.
func (r *QuizRun) Answer(questionID string) (string, bool) {
	answer, ok := r.answers[questionID]
	return answer, ok
}

// Questions returns the shuffled question sequence.
func (r *QuizRun) Questions() []ShuffledQuestion { return r.questions }

// NeedsCommit reports whether the completed run still lacks its persisted
// attempt row.
func (r *QuizRun) NeedsCommit() bool {
	return r.state == StateCompleted && !r.committed
}

// MarkCommitted records that the attempt row was written. The caller sets
// it only after a successful insert, so a failed insert is retried on the
// next result view while a successful one is never repeated.
func (r *QuizRun) MarkCommitted() {
	r.committed = true
}
