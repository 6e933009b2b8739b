/**
 * @description
 * PostgreSQL implementation of the payment service's transaction ledger. The
 * table is the system of record for what was attempted and how it ended,
 * independent of whether the balance mutations ultimately succeeded.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/payment/domain: Contains the domain models used for data transfer.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paystream/wallet-platform/internal/payment/domain"
)

const transactionColumns = `
	id, idempotency_key, request_fingerprint, sender_id, recipient_id, user_id,
	kind, status, amount, description, failure_reason, reconcile_flagged_at,
	created_at, updated_at
`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.IdempotencyKey,
		&tx.RequestFingerprint,
		&tx.SenderID,
		&tx.RecipientID,
		&tx.UserID,
		&tx.Kind,
		&tx.Status,
		&tx.Amount,
		&tx.Description,
		&tx.FailureReason,
		&tx.ReconcileFlaggedAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// InsertPending creates the ledger record before any remote mutation runs.
func (r *PostgresRepository) InsertPending(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, idempotency_key, request_fingerprint, sender_id, recipient_id, user_id, kind, status, amount, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9)
		RETURNING status, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		tx.ID, tx.IdempotencyKey, tx.RequestFingerprint, tx.SenderID, tx.RecipientID, tx.UserID, tx.Kind, tx.Amount, tx.Description,
	).Scan(&tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// MarkCompleted records the terminal completed status.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE transactions SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkFailed records the terminal failed status with a reason.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE transactions SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FlagForReconciliation leaves the record pending and attaches the diagnostic.
// It never overwrites an earlier flag, so the sweep alerts only once.
func (r *PostgresRepository) FlagForReconciliation(ctx context.Context, id uuid.UUID, diagnostic string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET failure_reason = $2, reconcile_flagged_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND reconcile_flagged_at IS NULL
	`, id, diagnostic)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FindByID retrieves a transaction by its ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// FindByIdempotencyKey retrieves a transaction by its idempotency key.
func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// ListForAccount returns records touching the account as sender, recipient, or
// legacy owner, ordered by creation time descending.
func (r *PostgresRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE sender_id = $1 OR recipient_id = $1 OR user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryTransactions(ctx, query, accountID, limit)
}

// ListAll returns the most recent transactions across all accounts.
func (r *PostgresRepository) ListAll(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC LIMIT $1`
	return r.queryTransactions(ctx, query, limit)
}

// FindStalePending returns pending records created before the cutoff that have
// not been flagged yet. These are surfaced for operator reconciliation, never
// silently retried: their idempotency key may already have partially executed.
func (r *PostgresRepository) FindStalePending(ctx context.Context, olderThan time.Time) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'pending' AND reconcile_flagged_at IS NULL AND created_at < $1
		ORDER BY created_at ASC
	`
	return r.queryTransactions(ctx, query, olderThan)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// Ping reports storage health for the health endpoint.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
