/**
 * @description
 * This file defines the core domain models for the payment service. The
 * `Transaction` struct is the durable ledger record for every transfer
 * attempt; it is created in `pending` before any remote balance mutation and
 * finalized exactly once.
 *
 * @notes
 * - Amounts are stored as `int64` minor units, the same representation the
 *   balance store uses, so no rounding can occur anywhere in the pipeline.
 * - The legacy `user_id` field survives for non-transfer transaction kinds
 *   (topups and imported credit/debit records) so history queries can cover
 *   them alongside payments.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds.
const (
	KindCredit  = "credit"
	KindDebit   = "debit"
	KindPayment = "payment"
	KindTopUp   = "topup"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is the durable record of a transfer attempt and its outcome.
type Transaction struct {
	ID                 uuid.UUID  `json:"id"`
	IdempotencyKey     string     `json:"idempotency_key"`
	RequestFingerprint string     `json:"-"`
	SenderID           *uuid.UUID `json:"sender_id,omitempty"`
	RecipientID        *uuid.UUID `json:"recipient_id,omitempty"`
	UserID             *uuid.UUID `json:"user_id,omitempty"` // legacy owner for non-transfer kinds
	Kind               string     `json:"kind"`
	Status             string     `json:"status"`
	Amount             int64      `json:"amount"` // minor units
	Description        string     `json:"description"`
	FailureReason      *string    `json:"failure_reason,omitempty"`
	ReconcileFlaggedAt *time.Time `json:"reconcile_flagged_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PaymentRequest is the DTO for incoming transfer API requests. The sender is
// never part of the body; it arrives through the verified-identity channel.
type PaymentRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Amount      int64     `json:"amount"` // minor units
	Description string    `json:"description"`
}

// TopUpRequest is the DTO for crediting the caller's own account.
type TopUpRequest struct {
	Amount      int64  `json:"amount"` // minor units
	Description string `json:"description"`
}

// PaymentResult is returned to the caller after a transfer attempt resolves.
type PaymentResult struct {
	Transaction      *Transaction `json:"transaction"`
	NewSenderBalance int64        `json:"new_sender_balance"`
	Replayed         bool         `json:"-"` // true when served from an earlier attempt with the same key
}
