/**
 * @description
 * Domain models for the ledger service. The ledger owns the authoritative,
 * versioned balance for every account; all other services read and mutate
 * balances exclusively through its HTTP surface.
 *
 * @notes
 * - Balances are `int64` minor units so financial math is exact.
 * - Version is the optimistic-concurrency token: every balance mutation is
 *   conditioned on the version observed at read time.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is a ledger account with its versioned balance.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Balance   int64     `json:"balance"` // minor units, never negative
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BalanceSnapshot is the read model served to the balance-store client.
type BalanceSnapshot struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
}

// CreateAccountRequest is the DTO for creating an account. New accounts start
// with a zero balance; balance is never accepted from the request body.
type CreateAccountRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdateAccountRequest carries profile-only updates. Balance and version are
// deliberately absent: profile writes must never touch them.
type UpdateAccountRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// SetBalanceRequest is the conditional-write DTO used by the payment service.
type SetBalanceRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
	NewBalance      int64 `json:"new_balance"`
}
