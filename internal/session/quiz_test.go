package session

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizdeck/internal/models"
)

func sampleQuestions(n int) []models.Question {
	questions := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, models.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			QuizID:        "quiz-1",
			QuestionText:  fmt.Sprintf("Question %d?", i+1),
			CorrectAnswer: fmt.Sprintf("right-%d", i+1),
			Option1:       fmt.Sprintf("wrong-%d-a", i+1),
			Option2:       fmt.Sprintf("wrong-%d-b", i+1),
			Option3:       fmt.Sprintf("wrong-%d-c", i+1),
		})
	}
	return questions
}

func TestNewQuizRunShufflePreservesOptions(t *testing.T) {
	questions := sampleQuestions(5)
	run, err := NewQuizRun("quiz-1", questions)
	require.NoError(t, err)
	require.Equal(t, StateInProgress, run.State())

	for i, shuffled := range run.Questions() {
		want := questions[i].Options()
		got := append([]string(nil), shuffled.Options...)
		sort.Strings(want)
		sort.Strings(got)
		assert.Equal(t, want, got, "shuffle must preserve the option multiset")
		assert.Equal(t, questions[i].CorrectAnswer, shuffled.CorrectAnswer,
			"correct answer identity must survive the shuffle")
	}
}

func TestNewQuizRunRequiresQuestions(t *testing.T) {
	_, err := NewQuizRun("quiz-1", nil)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestQuizRunAllCorrect(t *testing.T) {
	questions := sampleQuestions(3)
	run, err := NewQuizRun("quiz-1", questions)
	require.NoError(t, err)

	for run.State() == StateInProgress {
		current, err := run.Current()
		require.NoError(t, err)
		require.NoError(t, run.SubmitAnswer(current.CorrectAnswer))
	}

	assert.Equal(t, StateCompleted, run.State())
	assert.Equal(t, run.Total(), run.Score())
}

func TestQuizRunAllWrong(t *testing.T) {
	run, err := NewQuizRun("quiz-1", sampleQuestions(3))
	require.NoError(t, err)

	for run.State() == StateInProgress {
		require.NoError(t, run.SubmitAnswer("definitely not an option"))
	}

	assert.Equal(t, 0, run.Score())
	assert.Equal(t, 3, run.Total())
}

func TestQuizRunAnswerComparisonIsCaseSensitive(t *testing.T) {
	questions := sampleQuestions(1)
	run, err := NewQuizRun("quiz-1", questions)
	require.NoError(t, err)

	require.NoError(t, run.SubmitAnswer("RIGHT-1"))
	assert.Equal(t, 0, run.Score())
}

func TestQuizRunRecordsAnswersByQuestionID(t *testing.T) {
	questions := sampleQuestions(2)
	run, err := NewQuizRun("quiz-1", questions)
	require.NoError(t, err)

	first, err := run.Current()
	require.NoError(t, err)
	require.NoError(t, run.SubmitAnswer("my pick"))

	answer, ok := run.Answer(first.ID)
	require.True(t, ok)
	assert.Equal(t, "my pick", answer)
}

func TestQuizRunRejectsAnswersAfterCompletion(t *testing.T) {
	run, err := NewQuizRun("quiz-1", sampleQuestions(1))
	require.NoError(t, err)
	require.NoError(t, run.SubmitAnswer("x"))

	assert.ErrorIs(t, run.SubmitAnswer("y"), ErrQuizCompleted)
	_, err = run.Current()
	assert.ErrorIs(t, err, ErrQuizCompleted)
}

func TestCommitGuard(t *testing.T) {
	run, err := NewQuizRun("quiz-1", sampleQuestions(2))
	require.NoError(t, err)

	assert.False(t, run.NeedsCommit(), "nothing to persist before completion")

	require.NoError(t, run.SubmitAnswer("a"))
	require.NoError(t, run.SubmitAnswer("b"))
	require.Equal(t, StateCompleted, run.State())

	// The guard stays open until a successful insert is recorded, so a
	// failed insert gets retried on the next result view.
	assert.True(t, run.NeedsCommit())
	assert.True(t, run.NeedsCommit())

	run.MarkCommitted()
	assert.False(t, run.NeedsCommit(), "a persisted attempt is never written again")
}
