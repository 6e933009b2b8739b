/**
 * @description
 * This file defines the data access layer for gateway credentials. It follows
 * the repository pattern: an interface describing the operations the gateway
 * needs, plus a PostgreSQL implementation backed by a pgx connection pool.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paystream/wallet-platform/internal/gateway/domain"
)

var (
	ErrUserNotFound      = errors.New("gateway user not found")
	ErrDuplicateUsername = errors.New("username already taken")
)

// UserRepository defines the credential operations the gateway needs.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.GatewayUser) error
	FindByUsername(ctx context.Context, username string) (*domain.GatewayUser, error)
	Ping(ctx context.Context) error
}

// PostgresUserRepository is the pgx-backed implementation of UserRepository.
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

// NewPostgresUserRepository creates a new repository with the given pool.
func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateUser inserts a new credential record.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *domain.GatewayUser) error {
	query := `
		INSERT INTO gateway_users (id, username, password_hash, account_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, user.ID, user.Username, user.PasswordHash, user.AccountID, user.Role).
		Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create gateway user: %w", err)
	}
	return nil
}

// FindByUsername loads a credential record by its unique username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*domain.GatewayUser, error) {
	query := `
		SELECT id, username, password_hash, account_id, role, created_at
		FROM gateway_users
		WHERE username = $1`

	var user domain.GatewayUser
	err := r.db.QueryRow(ctx, query, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.AccountID, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find gateway user: %w", err)
	}
	return &user, nil
}

// Ping verifies database connectivity.
func (r *PostgresUserRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

var _ UserRepository = (*PostgresUserRepository)(nil)
