/**
 * @description
 * PostgreSQL implementation of the ledger service's `Repository` interface.
 * The accounts table is the system of record for spendable balances; the
 * conditional balance write here is the only code path that mutates a balance.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/ledger/domain: Contains the domain models used for data transfer.
 */
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paystream/wallet-platform/internal/ledger/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new account. New accounts always start at balance 0,
// version 1, regardless of what the caller put in the struct.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, name, email, balance, version)
		VALUES ($1, $2, $3, 0, 1)
		RETURNING balance, version, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, account.ID, account.Name, account.Email).Scan(
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// FindAccountByID retrieves an account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, name, email, balance, version, created_at, updated_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListAccounts returns accounts ordered by creation time, newest first.
func (r *PostgresRepository) ListAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, name, email, balance, version, created_at, updated_at
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID,
			&account.Name,
			&account.Email,
			&account.Balance,
			&account.Version,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// UpdateAccountProfile updates profile fields only. Balance and version are
// untouched by design; COALESCE keeps omitted fields as they were.
func (r *PostgresRepository) UpdateAccountProfile(ctx context.Context, id uuid.UUID, name, email *string) (*domain.Account, error) {
	var account domain.Account
	query := `
		UPDATE accounts
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, email, balance, version, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, id, name, email).Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return &account, nil
}

// DeleteAccount removes an account.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetBalanceConditional applies the optimistic-concurrency balance write. A
// zero-row UPDATE is ambiguous between "stale version" and "no such account",
// so a follow-up existence check disambiguates for the caller.
func (r *PostgresRepository) SetBalanceConditional(ctx context.Context, id uuid.UUID, expectedVersion, newBalance int64) (*domain.BalanceSnapshot, error) {
	var snapshot domain.BalanceSnapshot
	query := `
		UPDATE accounts
		SET balance = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING id, balance, version
	`
	err := r.db.QueryRow(ctx, query, id, expectedVersion, newBalance).Scan(
		&snapshot.AccountID,
		&snapshot.Balance,
		&snapshot.Version,
	)
	if err == nil {
		return &snapshot, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	var exists bool
	if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
		return nil, checkErr
	}
	if !exists {
		return nil, ErrAccountNotFound
	}
	return nil, ErrVersionConflict
}

// Ping reports storage health for the health endpoint.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
