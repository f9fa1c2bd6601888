package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"signflow/backend/internal/logging"
	"signflow/backend/pkg/models"
)

// Postgres implements the store interfaces against a PostgreSQL database.
type Postgres struct {
	db     *pgxpool.Pool
	logger *logging.Logger
}

// NewPostgres creates a new Postgres repository.
func NewPostgres(db *pgxpool.Pool, logger *logging.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// FindByID retrieves a user by id.
func (p *Postgres) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRow(ctx,
		"SELECT id, email, first_name, last_name FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByEmail retrieves a user by email, case-insensitively.
func (p *Postgres) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRow(ctx,
		"SELECT id, email, first_name, last_name FROM users WHERE lower(email) = lower($1)",
		strings.TrimSpace(email)).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

