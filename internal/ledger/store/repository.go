/**
 * @description
 * This file defines the `Repository` interface for the ledger service's data
 * access layer. The interface decouples the balance-store logic from the
 * PostgreSQL implementation so the service layer can be tested with stubs.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID handling.
 * - internal/ledger/domain: For the service's domain models.
 */
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/ledger/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrVersionConflict = errors.New("account version conflict")
	ErrDuplicateEmail  = errors.New("email already registered")
)

// Repository defines the set of methods for interacting with the accounts table.
type Repository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context, limit int) ([]domain.Account, error)
	UpdateAccountProfile(ctx context.Context, id uuid.UUID, name, email *string) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error

	// SetBalanceConditional applies the optimistic-concurrency write: the new
	// balance is stored and the version bumped only if the stored version still
	// equals expectedVersion. Returns ErrVersionConflict when another writer got
	// there first and ErrAccountNotFound when the account does not exist.
	SetBalanceConditional(ctx context.Context, id uuid.UUID, expectedVersion, newBalance int64) (*domain.BalanceSnapshot, error)

	Ping(ctx context.Context) error
}
