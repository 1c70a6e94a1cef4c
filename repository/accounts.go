package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mapleleafu/pongarena/pongarena-backend/models"
)

// AccountStore reads the users table owned by the account service.
type AccountStore struct {
    db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
    return &AccountStore{db: db}
}

func (s *AccountStore) ResolveUsername(ctx context.Context, id int64) (string, error) {
    var username string
    err := s.db.QueryRowContext(ctx, `SELECT username FROM users WHERE id = $1`, id).Scan(&username)
    if errors.Is(err, sql.ErrNoRows) {
        return "", models.ErrAccountNotFound
    }
    if err != nil {
        return "", fmt.Errorf("resolve account %d: %w", id, err)
    }
    return username, nil
}

// CreateAccount inserts a user row. Registration lives in the account
// service; this is used by seeding and tests.
func (s *AccountStore) CreateAccount(ctx context.Context, username string) (int64, error) {
    var id int64
    err := s.db.QueryRowContext(ctx, `INSERT INTO users (username) VALUES ($1) RETURNING id`, username).Scan(&id)
    if err != nil {
        return 0, fmt.Errorf("insert account %q: %w", username, err)
    }
    return id, nil
}
