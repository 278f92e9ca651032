package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			filepath TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS flashcards (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			front TEXT NOT NULL,
			back TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			due DATETIME,
			stability REAL NOT NULL DEFAULT 0,
			difficulty REAL NOT NULL DEFAULT 0,
			elapsed_days INTEGER NOT NULL DEFAULT 0,
			scheduled_days INTEGER NOT NULL DEFAULT 0,
			reps INTEGER NOT NULL DEFAULT 0,
			lapses INTEGER NOT NULL DEFAULT 0,
			state INTEGER NOT NULL DEFAULT 0,
			last_review DATETIME,
			FOREIGN KEY(document_id) REFERENCES documents(id)
		);`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(document_id) REFERENCES documents(id),
			FOREIGN KEY(user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			question_text TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			option1 TEXT NOT NULL,
			option2 TEXT NOT NULL,
			option3 TEXT NOT NULL,
			FOREIGN KEY(quiz_id) REFERENCES quizzes(id)
		);`,
		`CREATE TABLE IF NOT EXISTS quiz_attempts (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			score INTEGER NOT NULL CHECK(score >= 0),
			total_questions INTEGER NOT NULL CHECK(total_questions > 0),
			completed_at DATETIME NOT NULL,
			FOREIGN KEY(quiz_id) REFERENCES quizzes(id),
			FOREIGN KEY(user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS review_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flashcard_id TEXT NOT NULL,
			rating INTEGER NOT NULL,
			scheduled_days INTEGER NOT NULL,
			elapsed_days INTEGER NOT NULL,
			state INTEGER NOT NULL,
			reviewed_at DATETIME NOT NULL,
			FOREIGN KEY(flashcard_id) REFERENCES flashcards(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_flashcards_document ON flashcards(document_id);`,
		`CREATE INDEX IF NOT EXISTS idx_flashcards_due ON flashcards(due);`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_user ON quizzes(user_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions(quiz_id);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user ON quiz_attempts(user_id, completed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}
