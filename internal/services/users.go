package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizdeck/internal/crypto"
	"quizdeck/internal/models"
)

const minPasswordLen = 6

var (
	// ErrUserExists indicates the username or email is already taken.
	ErrUserExists = errors.New("username or email already exists")
	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrPasswordMismatch indicates password and confirmation differ.
	ErrPasswordMismatch = errors.New("passwords don't match")
	// ErrPasswordTooShort indicates the password is below the minimum length.
	ErrPasswordTooShort = fmt.Errorf("password should be at least %d characters", minPasswordLen)
	// ErrMissingFields indicates a required registration field is empty.
	ErrMissingFields = errors.New("username, email and password are required")
)

// UserService manages registration and authentication.
type UserService struct {
	db *sql.DB
}

func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// Register validates the input and creates a user row. Validation failures
// and duplicates leave no partial state.
func (s *UserService) Register(ctx context.Context, username, email, password, confirm string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, email, created_at)
		VALUES (?, ?, ?, ?, ?);
	`, user.ID, user.Username, user.PasswordHash, user.Email, user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// Authenticate verifies the username/password pair and returns the user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, email, created_at
		FROM users WHERE username = ?;
	`, strings.TrimSpace(username))

	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Email, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if !crypto.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
