package services

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"quizdeck/internal/db"
	"quizdeck/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func insertTestUser(t *testing.T, conn *sql.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: "x",
		Email:        username + "@example.com",
		CreatedAt:    time.Now().UTC(),
	}
	_, err := conn.Exec(`
		INSERT INTO users (id, username, password_hash, email, created_at)
		VALUES (?, ?, ?, ?, ?);
	`, user.ID, user.Username, user.PasswordHash, user.Email, user.CreatedAt)
	require.NoError(t, err)
	return user
}

func insertTestDocument(t *testing.T, conn *sql.DB, userID, title, content string) *models.Document {
	t.Helper()
	doc := &models.Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Filepath:  "/tmp/" + title + ".pdf",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := conn.Exec(`
		INSERT INTO documents (id, user_id, title, filepath, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, doc.ID, doc.UserID, doc.Title, doc.Filepath, doc.Content, doc.CreatedAt)
	require.NoError(t, err)
	return doc
}

func countRows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM `+table+`;`).Scan(&n))
	return n
}
