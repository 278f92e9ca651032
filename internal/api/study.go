package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"quizdeck/internal/services"
	"quizdeck/internal/session"
)

const timeLayout = time.RFC3339

func (s *Server) handleStudyNext(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	card, err := s.flashcards.NextCard(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, services.ErrNoDueCards) {
			writeJSON(w, http.StatusOK, map[string]any{
				"card":    nil,
				"message": "No cards due. Come back later!",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var due *string
	if card.Due.Valid {
		str := card.Due.Time.Format(timeLayout)
		due = &str
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"card": map[string]any{
			"id":    card.ID,
			"front": card.Front,
			"back":  card.Back,
			"due":   due,
			"state": card.State,
		},
	})
}

type reviewRequest struct {
	FlashcardID string `json:"flashcard_id"`
	Rating      string `json:"rating"`
}

func (s *Server) handleStudyReview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rating, err := parseRating(payload.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, logEntry, err := s.flashcards.ReviewCard(r.Context(), payload.FlashcardID, sess.UserID, rating)
	if err != nil {
		if errors.Is(err, services.ErrFlashcardNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var due *string
	if card.Due.Valid {
		str := card.Due.Time.Format(timeLayout)
		due = &str
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"card": map[string]any{
			"id":    card.ID,
			"due":   due,
			"state": card.State,
		},
		"log": map[string]any{
			"rating":   logEntry.Rating,
			"due_in":   logEntry.ScheduledDays,
			"reviewed": logEntry.ReviewedAt.Format(timeLayout),
		},
	})
}

func parseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q", raw)
	}
}
