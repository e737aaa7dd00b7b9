package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
)

const identityColumns = `id, login, password_hash, display_name, created_at`

// IdentityStore stores accounts in the users table.
type IdentityStore struct {
	db *sql.DB
}

// NewIdentityStore returns an IdentityStore over db.
func NewIdentityStore(db *sql.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

// FindByID retrieves an identity by id.
func (s *IdentityStore) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, storage.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM users WHERE id = $1`, id)
	return scanIdentity(row)
}

// FindByLogin retrieves an identity by login, ignoring case.
func (s *IdentityStore) FindByLogin(ctx context.Context, login string) (*domain.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM users WHERE lower(login) = lower($1)`, login)
	return scanIdentity(row)
}

// Create inserts identity.
func (s *IdentityStore) Create(ctx context.Context, identity domain.Identity) (*domain.Identity, error) {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `INSERT INTO users (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+identityColumns,
		identity.ID, identity.Login, identity.PasswordHash, identity.DisplayName, identity.CreatedAt)

	created, err := scanIdentity(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return nil, storage.ErrDuplicateLogin
	}
	return created, err
}

func scanIdentity(row scanner) (*domain.Identity, error) {
	var identity domain.Identity
	err := row.Scan(&identity.ID, &identity.Login, &identity.PasswordHash, &identity.DisplayName, &identity.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan identity: %w", err)
	}
	return &identity, nil
}
