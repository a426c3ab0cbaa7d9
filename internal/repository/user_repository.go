package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storeledger/internal/database"
	"storeledger/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository provides the minimal identity lookups the ledger needs.
// Account lifecycle (registration, authentication) lives outside this
// service; rows here are provisioned by that external collaborator.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*domain.User, error)
}

type userRepository struct {
	db *database.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user using parameterized queries
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by ID
func (r *userRepository) FindByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*domain.User, error) {
	if q == nil {
		q = r.db
	}

	query := `
		SELECT id, email, name, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &domain.User{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}
