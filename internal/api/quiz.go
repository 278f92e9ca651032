package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"quizdeck/internal/models"
	"quizdeck/internal/services"
	"quizdeck/internal/session"
)

func (s *Server) handleListQuizzes(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	quizzes, err := s.quizzes.ListByUser(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(quizzes))
	for _, quiz := range quizzes {
		out = append(out, map[string]any{
			"id":             quiz.ID,
			"title":          quiz.Title,
			"document_title": quiz.DocumentTitle,
			"created_at":     quiz.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": out})
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request, sess *session.Session, doc *models.Document) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	quiz, err := s.generation.GenerateQuiz(r.Context(), doc, sess.UserID)
	if err != nil {
		s.logger.Warn("quiz generation failed",
			zap.String("document_id", doc.ID), zap.Error(err))
		writeError(w, generationStatus(err), generationMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"quiz": map[string]any{
			"id":    quiz.ID,
			"title": quiz.Title,
		},
	})
}

type quizStartRequest struct {
	QuizID string `json:"quiz_id"`
}

// handleQuizStart loads the quiz's questions, shuffles each question's
// options, and installs the run as the session's single active quiz.
func (s *Server) handleQuizStart(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload quizStartRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	quiz, err := s.quizzes.GetForUser(r.Context(), payload.QuizID, sess.UserID)
	if err != nil {
		if errors.Is(err, services.ErrQuizNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	questions, err := s.quizzes.GetQuestions(r.Context(), quiz.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	run, err := session.NewQuizRun(quiz.ID, questions)
	if err != nil {
		writeError(w, http.StatusNotFound, "no questions found for this quiz")
		return
	}
	sess.StartQuiz(run)

	current, _ := run.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"quiz_id":  quiz.ID,
		"title":    quiz.Title,
		"total":    run.Total(),
		"question": questionView(current, run.Index(), run.Total()),
	})
}

func (s *Server) handleQuizQuestion(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	run := sess.Run()
	if run == nil {
		writeError(w, http.StatusNotFound, "no quiz in progress")
		return
	}
	current, err := run.Current()
	if err != nil {
		if errors.Is(err, session.ErrQuizCompleted) {
			writeJSON(w, http.StatusOK, map[string]any{"completed": true})
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completed": false,
		"question":  questionView(current, run.Index(), run.Total()),
	})
}

type quizAnswerRequest struct {
	Answer string `json:"answer"`
}

// handleQuizAnswer records the selection for the current question and, when
// the run completes, persists the attempt exactly once.
func (s *Server) handleQuizAnswer(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload quizAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var response map[string]any
	err := sess.WithQuiz(func(run *session.QuizRun) error {
		if err := run.SubmitAnswer(payload.Answer); err != nil {
			return err
		}
		if run.State() == session.StateCompleted {
			s.commitAttempt(r, sess, run)
			response = map[string]any{"completed": true, "total": run.Total()}
			return nil
		}
		current, err := run.Current()
		if err != nil {
			return err
		}
		response = map[string]any{
			"completed": false,
			"question":  questionView(current, run.Index(), run.Total()),
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrQuizNotStarted):
			writeError(w, http.StatusNotFound, "no quiz in progress")
		case errors.Is(err, session.ErrQuizCompleted):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleQuizResult renders the completed run. Rendering is idempotent with
// respect to attempt persistence: refreshing the result never appends a
// second attempt row.
func (s *Server) handleQuizResult(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	var response map[string]any
	err := sess.WithQuiz(func(run *session.QuizRun) error {
		if run.State() != session.StateCompleted {
			return session.ErrQuizNotStarted
		}
		s.commitAttempt(r, sess, run)

		review := make([]map[string]any, 0, run.Total())
		for _, q := range run.Questions() {
			answer, _ := run.Answer(q.ID)
			review = append(review, map[string]any{
				"question_text":  q.QuestionText,
				"your_answer":    answer,
				"correct_answer": q.CorrectAnswer,
				"correct":        answer == q.CorrectAnswer,
			})
		}

		percent := float64(run.Score()) / float64(run.Total()) * 100
		response = map[string]any{
			"score":   run.Score(),
			"total":   run.Total(),
			"percent": percent,
			"display": fmt.Sprintf("%d/%d (%.1f%%)", run.Score(), run.Total(), percent),
			"review":  review,
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "no completed quiz in this session")
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleQuizCancel(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	// Abandoning an unfinished run persists nothing.
	sess.CancelQuiz()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// commitAttempt persists the run's attempt row, gated by the run's commit
// guard. Callers may invoke it any number of times: a successful insert is
// never repeated, a failed one is retried on the next invocation.
func (s *Server) commitAttempt(r *http.Request, sess *session.Session, run *session.QuizRun) {
	if !run.NeedsCommit() {
		return
	}
	if _, err := s.quizzes.SaveAttempt(r.Context(), run.QuizID, sess.UserID,
		run.Score(), run.Total()); err != nil {
		s.logger.Error("save quiz attempt",
			zap.String("quiz_id", run.QuizID),
			zap.String("user_id", sess.UserID),
			zap.Error(err))
		return
	}
	run.MarkCommitted()
}

func questionView(q session.ShuffledQuestion, index, total int) map[string]any {
	return map[string]any{
		"id":            q.ID,
		"question_text": q.QuestionText,
		"options":       q.Options,
		"index":         index,
		"total":         total,
	}
}
