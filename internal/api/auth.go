package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"quizdeck/internal/services"
	"quizdeck/internal/session"
)

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload registerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, err := s.users.Register(r.Context(), payload.Username, payload.Email,
		payload.Password, payload.ConfirmPassword)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, services.ErrMissingFields),
			errors.Is(err, services.ErrPasswordMismatch),
			errors.Is(err, services.ErrPasswordTooShort):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("register failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID,
		"username": user.Username,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, err := s.users.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	sess := s.sessions.Create(user.ID, user.Username)
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(session.Timeout.Seconds()),
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"token":    sess.Token,
		"username": sess.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.sessions.Destroy(sess.Token)
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
