/**
 * @description
 * This file defines the `Repository` interface for the payment service's
 * transaction ledger. The ledger is append-mostly: a record is inserted once
 * per transfer attempt and mutated at most once more with its terminal status.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID handling.
 * - internal/payment/domain: For the service's domain models.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/payment/domain"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateKey        = errors.New("idempotency key already recorded")
)

// Repository defines the set of methods for interacting with the transactions table.
type Repository interface {
	// InsertPending creates the record before any balance mutation is attempted.
	// A unique-violation on the idempotency key is reported as ErrDuplicateKey so
	// concurrent replays collapse onto the first attempt.
	InsertPending(ctx context.Context, tx *domain.Transaction) error

	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// FlagForReconciliation keeps the record pending and attaches a diagnostic.
	// Used when compensation failed and an operator must resolve the transfer.
	FlagForReconciliation(ctx context.Context, id uuid.UUID, diagnostic string) error

	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)

	// ListForAccount returns records touching the account as sender, recipient,
	// or legacy owner, newest first.
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error)
	ListAll(ctx context.Context, limit int) ([]domain.Transaction, error)

	// FindStalePending returns pending records created before the cutoff that
	// have not yet been flagged for reconciliation.
	FindStalePending(ctx context.Context, olderThan time.Time) ([]domain.Transaction, error)

	Ping(ctx context.Context) error
}
