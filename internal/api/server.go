package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"quizdeck/internal/services"
	"quizdeck/internal/session"
)

const maxMultipartMemory = 8 << 20 // 8 MB

// Server exposes the JSON API over a plain http.ServeMux.
type Server struct {
	mux        *http.ServeMux
	logger     *zap.Logger
	sessions   *session.Manager
	users      *services.UserService
	documents  *services.DocumentService
	flashcards *services.FlashcardService
	quizzes    *services.QuizService
	generation *services.GenerationService
	export     *services.ExportService
}

func NewServer(
	logger *zap.Logger,
	sessions *session.Manager,
	users *services.UserService,
	documents *services.DocumentService,
	flashcards *services.FlashcardService,
	quizzes *services.QuizService,
	generation *services.GenerationService,
	export *services.ExportService,
) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		sessions:   sessions,
		users:      users,
		documents:  documents,
		flashcards: flashcards,
		quizzes:    quizzes,
		generation: generation,
		export:     export,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.withSession(s.handleLogout))
	s.mux.HandleFunc("/api/dashboard", s.withSession(s.handleDashboard))
	s.mux.HandleFunc("/api/documents", s.withSession(s.handleDocuments))
	s.mux.HandleFunc("/api/documents/", s.withSession(s.handleDocumentActions))
	s.mux.HandleFunc("/api/quizzes", s.withSession(s.handleListQuizzes))
	s.mux.HandleFunc("/api/quiz/start", s.withSession(s.handleQuizStart))
	s.mux.HandleFunc("/api/quiz/question", s.withSession(s.handleQuizQuestion))
	s.mux.HandleFunc("/api/quiz/answer", s.withSession(s.handleQuizAnswer))
	s.mux.HandleFunc("/api/quiz/result", s.withSession(s.handleQuizResult))
	s.mux.HandleFunc("/api/quiz/cancel", s.withSession(s.handleQuizCancel))
	s.mux.HandleFunc("/api/progress", s.withSession(s.handleProgress))
	s.mux.HandleFunc("/api/study/next", s.withSession(s.handleStudyNext))
	s.mux.HandleFunc("/api/study/review", s.withSession(s.handleStudyReview))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withSession resolves the session token and forces a re-login when the
// session window has elapsed.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(sessionToken(r))
		if err != nil {
			if errors.Is(err, session.ErrSessionExpired) {
				writeError(w, http.StatusUnauthorized, "your session has expired, please log in again")
				return
			}
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		next(w, r, sess)
	}
}

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie("session_token"); err == nil {
		return cookie.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
