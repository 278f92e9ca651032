package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quizdeck/internal/db"
	"quizdeck/internal/models"
	"quizdeck/internal/services"
	"quizdeck/internal/session"
)

// stubGenerator produces deterministic flashcards and questions so the full
// HTTP flow runs without a network dependency. The correct answer for
// "Question N?" is always "right-N".
type stubGenerator struct {
	err error
}

func (g *stubGenerator) GenerateFlashcards(ctx context.Context, documentText string) ([]services.FlashcardPrototype, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []services.FlashcardPrototype{
		{Front: "Front 1", Back: "Back 1"},
		{Front: "Front 2", Back: "Back 2"},
	}, nil
}

func (g *stubGenerator) GenerateQuestions(ctx context.Context, flashcards []models.Flashcard) ([]services.QuestionPrototype, error) {
	if g.err != nil {
		return nil, g.err
	}
	questions := make([]services.QuestionPrototype, 0, len(flashcards))
	for i := range flashcards {
		questions = append(questions, services.QuestionPrototype{
			QuestionText:  fmt.Sprintf("Question %d?", i+1),
			CorrectAnswer: fmt.Sprintf("right-%d", i+1),
			Option1:       "wrong-a", Option2: "wrong-b", Option3: "wrong-c",
		})
	}
	return questions, nil
}

type testServer struct {
	*httptest.Server
	db    *sql.DB
	token string
}

func newTestServer(t *testing.T, gen services.Generator) *testServer {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	logger := zaptest.NewLogger(t)
	flashcards := services.NewFlashcardService(conn)
	srv := NewServer(
		logger,
		session.NewManager(),
		services.NewUserService(conn),
		services.NewDocumentService(conn, services.NewPDFService(), t.TempDir()),
		flashcards,
		services.NewQuizService(conn),
		services.NewGenerationService(conn, gen, flashcards),
		services.NewExportService(),
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, db: conn}
}

func (ts *testServer) do(t *testing.T, method, path string, payload any) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func (ts *testServer) signUp(t *testing.T, username string) {
	t.Helper()
	status, _ := ts.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "secret1",
		"confirm_password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := ts.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	ts.token = token
}

// insertDocument seeds a document row directly so the flow does not depend
// on real PDF parsing.
func (ts *testServer) insertDocument(t *testing.T, title string) string {
	t.Helper()
	var userID string
	require.NoError(t, ts.db.QueryRow(`SELECT id FROM users LIMIT 1;`).Scan(&userID))

	id := uuid.NewString()
	_, err := ts.db.Exec(`
		INSERT INTO documents (id, user_id, title, filepath, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, id, userID, title, "/tmp/"+title+".pdf", "extracted text", time.Now().UTC())
	require.NoError(t, err)
	return id
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	status, body := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	for _, path := range []string{"/api/documents", "/api/quizzes", "/api/progress", "/api/dashboard"} {
		status, body := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, "not logged in", body["error"], path)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	ts.signUp(t, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// correctAnswerFor derives the right answer from the stub's
// "Question N?" -> "right-N" scheme.
func correctAnswerFor(t *testing.T, question map[string]any) string {
	t.Helper()
	text, _ := question["question_text"].(string)
	n := strings.TrimSuffix(strings.TrimPrefix(text, "Question "), "?")
	require.NotEmpty(t, n)
	return "right-" + n
}

func TestFullQuizFlow(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	ts.signUp(t, "alice")
	docID := ts.insertDocument(t, "Sample Notes")

	// Quiz generation bootstraps flashcards first, then the questions.
	status, body := ts.do(t, http.MethodPost, "/api/documents/"+docID+"/quiz", nil)
	require.Equal(t, http.StatusCreated, status, "body: %v", body)
	quiz, _ := body["quiz"].(map[string]any)
	require.NotNil(t, quiz)
	quizID, _ := quiz["id"].(string)
	require.NotEmpty(t, quizID)
	assert.Equal(t, "Quiz on Sample Notes", quiz["title"])

	// Start the quiz and walk it answering everything correctly.
	status, body = ts.do(t, http.MethodPost, "/api/quiz/start", map[string]string{"quiz_id": quizID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total"])

	question, _ := body["question"].(map[string]any)
	require.NotNil(t, question)
	options, _ := question["options"].([]any)
	assert.Len(t, options, 4)

	for {
		status, body = ts.do(t, http.MethodPost, "/api/quiz/answer",
			map[string]string{"answer": correctAnswerFor(t, question)})
		require.Equal(t, http.StatusOK, status)
		if completed, _ := body["completed"].(bool); completed {
			break
		}
		question, _ = body["question"].(map[string]any)
		require.NotNil(t, question)
	}

	// The result reports a perfect score.
	status, body = ts.do(t, http.MethodGet, "/api/quiz/result", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["score"])
	assert.Equal(t, "2/2 (100.0%)", body["display"])
	review, _ := body["review"].([]any)
	assert.Len(t, review, 2)

	// Exactly one attempt row, no matter how often the result is rendered.
	var attempts int
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts;`).Scan(&attempts))
	assert.Equal(t, 1, attempts)

	status, _ = ts.do(t, http.MethodGet, "/api/quiz/result", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts;`).Scan(&attempts))
	assert.Equal(t, 1, attempts, "refreshing the result must not append attempts")

	// Progress now reflects the single perfect attempt.
	status, body = ts.do(t, http.MethodGet, "/api/progress", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total_attempts"])
	assert.Equal(t, float64(100), body["average_score"])
}

func TestAttemptRetriedAfterInsertFailure(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	ts.signUp(t, "alice")
	docID := ts.insertDocument(t, "Sample")

	status, body := ts.do(t, http.MethodPost, "/api/documents/"+docID+"/quiz", nil)
	require.Equal(t, http.StatusCreated, status)
	quiz, _ := body["quiz"].(map[string]any)
	quizID, _ := quiz["id"].(string)

	status, body = ts.do(t, http.MethodPost, "/api/quiz/start", map[string]string{"quiz_id": quizID})
	require.Equal(t, http.StatusOK, status)
	question, _ := body["question"].(map[string]any)
	require.NotNil(t, question)

	status, body = ts.do(t, http.MethodPost, "/api/quiz/answer",
		map[string]string{"answer": correctAnswerFor(t, question)})
	require.Equal(t, http.StatusOK, status)
	question, _ = body["question"].(map[string]any)
	require.NotNil(t, question)

	// Hide the attempts table so the insert on completion fails.
	_, err := ts.db.Exec(`ALTER TABLE quiz_attempts RENAME TO quiz_attempts_hidden;`)
	require.NoError(t, err)

	status, body = ts.do(t, http.MethodPost, "/api/quiz/answer",
		map[string]string{"answer": correctAnswerFor(t, question)})
	require.Equal(t, http.StatusOK, status)
	completed, _ := body["completed"].(bool)
	require.True(t, completed)

	_, err = ts.db.Exec(`ALTER TABLE quiz_attempts_hidden RENAME TO quiz_attempts;`)
	require.NoError(t, err)

	var attempts int
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts;`).Scan(&attempts))
	require.Equal(t, 0, attempts, "the failed insert must not have written a row")

	// The next result view retries the insert; further views do not repeat it.
	status, body = ts.do(t, http.MethodGet, "/api/quiz/result", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2/2 (100.0%)", body["display"])
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts;`).Scan(&attempts))
	assert.Equal(t, 1, attempts)

	status, _ = ts.do(t, http.MethodGet, "/api/quiz/result", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts;`).Scan(&attempts))
	assert.Equal(t, 1, attempts)
}

func TestQuizAnswerWithoutRun(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	ts.signUp(t, "alice")

	status, body := ts.do(t, http.MethodPost, "/api/quiz/answer", map[string]string{"answer": "x"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no quiz in progress", body["error"])
}

func TestQuizCancelDiscardsRun(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	ts.signUp(t, "alice")
	docID := ts.insertDocument(t, "Sample")

	status, body := ts.do(t, http.MethodPost, "/api/documents/"+docID+"/quiz", nil)
	require.Equal(t, http.StatusCreated, status)
	quiz, _ := body["quiz"].(map[string]any)
	quizID, _ := quiz["id"].(string)

	status, _ = ts.do(t, http.MethodPost, "/api/quiz/start", map[string]string{"quiz_id": quizID})
	require.Equal(t, http.StatusOK, status)
	status, _ = ts.do(t, http.MethodPost, "/api/quiz/cancel", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodGet, "/api/quiz/question", nil)
	assert.Equal(t, http.StatusNotFound, status)

	var attempts int
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM quiz_attempts;`).Scan(&attempts))
	assert.Equal(t, 0, attempts, "a cancelled run must persist nothing")
}

func TestGenerationFailureReported(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{err: services.ErrMalformedResponse})
	ts.signUp(t, "alice")
	docID := ts.insertDocument(t, "Sample")

	status, body := ts.do(t, http.MethodPost, "/api/documents/"+docID+"/flashcards", nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "unusable response")

	var cards int
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM flashcards;`).Scan(&cards))
	assert.Equal(t, 0, cards)
}

func TestQuizzesScopedToUser(t *testing.T) {
	ts := newTestServer(t, &stubGenerator{})
	ts.signUp(t, "alice")
	docID := ts.insertDocument(t, "Sample")

	status, body := ts.do(t, http.MethodPost, "/api/documents/"+docID+"/quiz", nil)
	require.Equal(t, http.StatusCreated, status)
	quiz, _ := body["quiz"].(map[string]any)
	quizID, _ := quiz["id"].(string)

	ts.signUp(t, "bob")
	status, _ = ts.do(t, http.MethodPost, "/api/quiz/start", map[string]string{"quiz_id": quizID})
	assert.Equal(t, http.StatusNotFound, status, "another user's quiz must not be startable")

	status, body = ts.do(t, http.MethodGet, "/api/quizzes", nil)
	require.Equal(t, http.StatusOK, status)
	quizzes, _ := body["quizzes"].([]any)
	assert.Empty(t, quizzes)
}
