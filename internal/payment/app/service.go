/**
 * @description
 * This file contains the core business logic for the payment service. The
 * `Service` struct orchestrates a transfer as a saga of two remote balance
 * mutations plus one local ledger write, and owns the compensation logic when
 * a step fails partway.
 *
 * The saga per attempt is:
 *   validate -> insert pending record -> debit sender -> credit recipient -> mark completed
 * Debit-before-credit is mandatory: crediting first and failing the debit
 * would create value from nothing, which is strictly worse than a reversible
 * dangling debit. Each conditional write is retried at most once on a version
 * conflict; a credit failure after a confirmed debit triggers a compensating
 * credit back to the sender.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID and idempotency key generation.
 * - internal/payment/domain, internal/payment/store: For domain models and data access.
 * - pkg/ledgerclient, pkg/rabbitmq: For external service communication.
 */
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/payment/domain"
	"github.com/paystream/wallet-platform/internal/payment/store"
	"github.com/paystream/wallet-platform/pkg/ledgerclient"
	"github.com/paystream/wallet-platform/pkg/rabbitmq"
)

var (
	ErrInvalidAmount       = errors.New("amount must be a positive number of minor units")
	ErrSelfTransfer        = errors.New("sender and recipient must be different accounts")
	ErrSenderNotFound      = errors.New("sender account not found")
	ErrRecipientNotFound   = errors.New("recipient account not found")
	ErrTransferInProgress  = errors.New("a transfer with this idempotency key is still in progress")
	ErrIdempotencyConflict = errors.New("idempotency key was already used with a different payload")
	ErrTransferConflict    = errors.New("transfer conflicted with concurrent balance updates; retry")
)

// InsufficientFundsError reports a balance validation failure with enough
// structure for the API to echo the current and required amounts.
type InsufficientFundsError struct {
	CurrentBalance int64
	Required       int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.CurrentBalance, e.Required)
}

// IntegrityError reports that money moved but the transfer could not be
// resolved: either the compensating credit failed after a confirmed debit, or
// the terminal status write failed after both mutations succeeded. The record
// stays pending and is flagged for operator reconciliation. Callers must treat
// this as "money moved, investigate", never as "nothing happened".
type IntegrityError struct {
	TransactionID uuid.UUID
	Diagnostic    string
	Cause         error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("transfer %s requires reconciliation: %s", e.TransactionID, e.Diagnostic)
}

func (e *IntegrityError) Unwrap() error { return e.Cause }

// LedgerClient is the balance-store surface the orchestrator depends on.
// *ledgerclient.Client satisfies it; tests substitute stubs.
type LedgerClient interface {
	GetBalance(ctx context.Context, accountID string) (*ledgerclient.Balance, error)
	GetAccount(ctx context.Context, accountID string) (*ledgerclient.Account, error)
	SetBalance(ctx context.Context, accountID string, expectedVersion, newBalance int64, ref string) error
	Health(ctx context.Context) error
}

// Service provides the core business logic for the payment service.
type Service struct {
	repo     store.Repository
	ledger   LedgerClient
	producer rabbitmq.Publisher
}

// NewService creates a new payment service instance.
func NewService(repo store.Repository, ledger LedgerClient, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		producer: producer,
	}
}

// fingerprint canonicalizes the parts of a request that define its identity,
// so a replayed idempotency key with a different payload can be rejected.
func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ProcessPayment executes the transfer saga for an authenticated sender. The
// sender id must come from the verified-identity channel, never the body.
func (s *Service) ProcessPayment(ctx context.Context, senderID uuid.UUID, req domain.PaymentRequest, idempotencyKey string) (*domain.PaymentResult, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	fp := fingerprint(senderID.String(), req.RecipientID.String(), fmt.Sprintf("%d", req.Amount))

	// 1. Idempotent replay: if this key was seen before, never re-execute the
	// balance mutations. Return the recorded outcome, or report in-progress.
	if existing, err := s.repo.FindByIdempotencyKey(ctx, idempotencyKey); err == nil {
		return s.replayOutcome(ctx, existing, fp, senderID)
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	recipientID := req.RecipientID
	record := &domain.Transaction{
		ID:                 uuid.New(),
		IdempotencyKey:     idempotencyKey,
		RequestFingerprint: fp,
		SenderID:           &senderID,
		RecipientID:        &recipientID,
		Kind:               domain.KindPayment,
		Amount:             req.Amount,
		Description:        req.Description,
	}

	// 2. Structural validation. These failures are recorded without any call
	// to the balance store.
	if req.Amount <= 0 {
		return nil, s.recordValidationFailure(ctx, record, ErrInvalidAmount)
	}
	if senderID == req.RecipientID {
		return nil, s.recordValidationFailure(ctx, record, ErrSelfTransfer)
	}

	// 3. Read both balances through the resilient client.
	senderBal, err := s.ledger.GetBalance(ctx, senderID.String())
	if err != nil {
		return nil, s.recordValidationFailure(ctx, record, classifyReadError(err, ErrSenderNotFound))
	}
	recipientBal, err := s.ledger.GetBalance(ctx, req.RecipientID.String())
	if err != nil {
		return nil, s.recordValidationFailure(ctx, record, classifyReadError(err, ErrRecipientNotFound))
	}
	if senderBal.Balance < req.Amount {
		return nil, s.recordValidationFailure(ctx, record, &InsufficientFundsError{CurrentBalance: senderBal.Balance, Required: req.Amount})
	}

	// 4. Persist the pending record before any mutation. A duplicate key here
	// means a concurrent request with the same key won the race.
	if err := s.repo.InsertPending(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrTransferInProgress
		}
		return nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	// 5. DEBITING: conditional write against the version read above, retried
	// once on conflict with a fresh read and re-validation.
	newSenderBalance, err := s.debitSender(ctx, record, senderID, senderBal, req.Amount)
	if err != nil {
		return nil, err
	}

	// 6. CREDITING: same conditional-write discipline on the recipient side.
	// A failure here is the partial-failure case and moves to compensation.
	if err := s.creditRecipient(ctx, record, req.RecipientID, recipientBal, req.Amount); err != nil {
		return nil, s.compensateDebit(ctx, record, senderID, req.Amount, err)
	}

	// 7. COMPLETING: the terminal status write. Only after it lands is the
	// caller told the transfer succeeded.
	if err := s.repo.MarkCompleted(ctx, record.ID); err != nil {
		diagnostic := "both balance mutations applied but the completed status write failed"
		log.Printf("level=error component=orchestrator op=complete transaction_id=%s msg=%q err=%v", record.ID, diagnostic, err)
		s.alertReconciliation(record, diagnostic)
		return nil, &IntegrityError{TransactionID: record.ID, Diagnostic: diagnostic, Cause: err}
	}
	record.Status = domain.StatusCompleted

	s.publishTransferEvent(rabbitmq.RouteTransferCompleted, record, "")
	log.Printf("level=info component=orchestrator op=transfer outcome=completed transaction_id=%s sender_id=%s recipient_id=%s amount=%d", record.ID, senderID, req.RecipientID, req.Amount)

	return &domain.PaymentResult{Transaction: record, NewSenderBalance: newSenderBalance}, nil
}

// replayOutcome serves a request whose idempotency key has been seen before.
func (s *Service) replayOutcome(ctx context.Context, existing *domain.Transaction, fp string, senderID uuid.UUID) (*domain.PaymentResult, error) {
	if existing.RequestFingerprint != fp {
		return nil, ErrIdempotencyConflict
	}
	if existing.Status == domain.StatusPending {
		return nil, ErrTransferInProgress
	}

	// Best-effort current balance for the response; the recorded outcome is
	// what matters.
	var balance int64
	if snap, err := s.ledger.GetBalance(ctx, senderID.String()); err == nil {
		balance = snap.Balance
	}
	log.Printf("level=info component=orchestrator op=transfer outcome=replayed transaction_id=%s status=%s", existing.ID, existing.Status)
	return &domain.PaymentResult{Transaction: existing, NewSenderBalance: balance, Replayed: true}, nil
}

// recordValidationFailure persists a failed record for a transfer that was
// rejected before any balance mutation, then returns the validation error.
func (s *Service) recordValidationFailure(ctx context.Context, record *domain.Transaction, cause error) error {
	if err := s.repo.InsertPending(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return ErrTransferInProgress
		}
		log.Printf("level=error component=orchestrator op=record_validation_failure msg=\"could not persist failed attempt\" err=%v", err)
		return cause
	}
	if err := s.repo.MarkFailed(ctx, record.ID, cause.Error()); err != nil {
		log.Printf("level=error component=orchestrator op=record_validation_failure transaction_id=%s err=%v", record.ID, err)
	}
	record.Status = domain.StatusFailed
	reason := cause.Error()
	record.FailureReason = &reason
	return cause
}

// classifyReadError maps a client read failure to the saga's error taxonomy.
func classifyReadError(err error, notFound error) error {
	if errors.Is(err, ledgerclient.ErrAccountNotFound) {
		return notFound
	}
	if errors.Is(err, ledgerclient.ErrStoreUnavailable) {
		return err
	}
	return err
}

// debitSender performs the conditional debit, retrying once on a version
// conflict with a fresh read and a re-check of sufficient funds. It returns
// the sender's balance after the debit.
func (s *Service) debitSender(ctx context.Context, record *domain.Transaction, senderID uuid.UUID, senderBal *ledgerclient.Balance, amount int64) (int64, error) {
	ref := record.IdempotencyKey

	err := s.ledger.SetBalance(ctx, senderID.String(), senderBal.Version, senderBal.Balance-amount, ref)
	if errors.Is(err, ledgerclient.ErrVersionConflict) {
		// A concurrent transfer touched the sender. Re-read, re-validate, and
		// retry exactly once.
		fresh, readErr := s.ledger.GetBalance(ctx, senderID.String())
		if readErr != nil {
			return 0, s.failDebit(ctx, record, classifyReadError(readErr, ErrSenderNotFound))
		}
		if fresh.Balance < amount {
			return 0, s.failDebit(ctx, record, &InsufficientFundsError{CurrentBalance: fresh.Balance, Required: amount})
		}
		senderBal = fresh
		err = s.ledger.SetBalance(ctx, senderID.String(), senderBal.Version, senderBal.Balance-amount, ref)
		if errors.Is(err, ledgerclient.ErrVersionConflict) {
			return 0, s.failDebit(ctx, record, ErrTransferConflict)
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, ledgerclient.ErrAccountNotFound):
			return 0, s.failDebit(ctx, record, ErrSenderNotFound)
		default:
			// Timeout or transport failure: no confirmed side effect, so the
			// attempt fails without compensation.
			return 0, s.failDebit(ctx, record, fmt.Errorf("%w: debit not confirmed", ledgerclient.ErrStoreUnavailable))
		}
	}
	return senderBal.Balance - amount, nil
}

func (s *Service) failDebit(ctx context.Context, record *domain.Transaction, cause error) error {
	if err := s.repo.MarkFailed(ctx, record.ID, cause.Error()); err != nil {
		log.Printf("level=error component=orchestrator op=fail_debit transaction_id=%s err=%v", record.ID, err)
	}
	record.Status = domain.StatusFailed
	reason := cause.Error()
	record.FailureReason = &reason
	log.Printf("level=warn component=orchestrator op=transfer outcome=failed stage=debiting transaction_id=%s reason=%q", record.ID, reason)
	return cause
}

// creditRecipient performs the conditional credit, retrying once on conflict.
func (s *Service) creditRecipient(ctx context.Context, record *domain.Transaction, recipientID uuid.UUID, recipientBal *ledgerclient.Balance, amount int64) error {
	ref := record.IdempotencyKey

	err := s.ledger.SetBalance(ctx, recipientID.String(), recipientBal.Version, recipientBal.Balance+amount, ref)
	if errors.Is(err, ledgerclient.ErrVersionConflict) {
		fresh, readErr := s.ledger.GetBalance(ctx, recipientID.String())
		if readErr != nil {
			return classifyReadError(readErr, ErrRecipientNotFound)
		}
		err = s.ledger.SetBalance(ctx, recipientID.String(), fresh.Version, fresh.Balance+amount, ref)
		if errors.Is(err, ledgerclient.ErrVersionConflict) {
			return ErrTransferConflict
		}
	}
	if err != nil {
		if errors.Is(err, ledgerclient.ErrAccountNotFound) {
			return ErrRecipientNotFound
		}
		return err
	}
	return nil
}

// compensateDebit reverses a confirmed debit after the credit step failed. On
// success the record is failed with a reversal reason; if the compensation
// itself fails the record stays pending, is flagged for reconciliation, and an
// alert event is published. It is never silently retried and never marked
// completed.
func (s *Service) compensateDebit(ctx context.Context, record *domain.Transaction, senderID uuid.UUID, amount int64, creditErr error) error {
	compRef := record.IdempotencyKey + ":comp"
	log.Printf("level=warn component=orchestrator op=transfer stage=crediting transaction_id=%s msg=\"credit failed; reversing debit\" err=%v", record.ID, creditErr)

	compensate := func() error {
		fresh, err := s.ledger.GetBalance(ctx, senderID.String())
		if err != nil {
			return err
		}
		return s.ledger.SetBalance(ctx, senderID.String(), fresh.Version, fresh.Balance+amount, compRef)
	}

	err := compensate()
	if errors.Is(err, ledgerclient.ErrVersionConflict) {
		err = compensate()
	}
	if err != nil {
		diagnostic := fmt.Sprintf("debit succeeded, credit failed (%v), compensation failed (%v); sender funds in dangling debited state", creditErr, err)
		if flagErr := s.repo.FlagForReconciliation(ctx, record.ID, diagnostic); flagErr != nil {
			log.Printf("level=error component=orchestrator op=flag_reconciliation transaction_id=%s err=%v", record.ID, flagErr)
		}
		s.alertReconciliation(record, diagnostic)
		log.Printf("level=error component=orchestrator op=transfer outcome=unresolved transaction_id=%s msg=\"compensation failed; operator reconciliation required\"", record.ID)
		return &IntegrityError{TransactionID: record.ID, Diagnostic: diagnostic, Cause: creditErr}
	}

	reason := "recipient unavailable, transfer reversed"
	if errors.Is(creditErr, ErrRecipientNotFound) {
		reason = "recipient account not found, transfer reversed"
	}
	if err := s.repo.MarkFailed(ctx, record.ID, reason); err != nil {
		log.Printf("level=error component=orchestrator op=mark_reversed transaction_id=%s err=%v", record.ID, err)
	}
	record.Status = domain.StatusFailed
	record.FailureReason = &reason
	s.publishTransferEvent(rabbitmq.RouteTransferReversed, record, reason)
	log.Printf("level=warn component=orchestrator op=transfer outcome=reversed transaction_id=%s reason=%q", record.ID, reason)
	return creditErr
}

// ProcessTopUp credits the caller's own account, recorded as a topup.
func (s *Service) ProcessTopUp(ctx context.Context, userID uuid.UUID, req domain.TopUpRequest, idempotencyKey string) (*domain.PaymentResult, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	fp := fingerprint("topup", userID.String(), fmt.Sprintf("%d", req.Amount))

	if existing, err := s.repo.FindByIdempotencyKey(ctx, idempotencyKey); err == nil {
		return s.replayOutcome(ctx, existing, fp, userID)
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	record := &domain.Transaction{
		ID:                 uuid.New(),
		IdempotencyKey:     idempotencyKey,
		RequestFingerprint: fp,
		UserID:             &userID,
		Kind:               domain.KindTopUp,
		Amount:             req.Amount,
		Description:        req.Description,
	}

	if req.Amount <= 0 {
		return nil, s.recordValidationFailure(ctx, record, ErrInvalidAmount)
	}

	balance, err := s.ledger.GetBalance(ctx, userID.String())
	if err != nil {
		return nil, s.recordValidationFailure(ctx, record, classifyReadError(err, ErrSenderNotFound))
	}

	if err := s.repo.InsertPending(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrTransferInProgress
		}
		return nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	err = s.ledger.SetBalance(ctx, userID.String(), balance.Version, balance.Balance+req.Amount, record.IdempotencyKey)
	if errors.Is(err, ledgerclient.ErrVersionConflict) {
		fresh, readErr := s.ledger.GetBalance(ctx, userID.String())
		if readErr != nil {
			return nil, s.failDebit(ctx, record, classifyReadError(readErr, ErrSenderNotFound))
		}
		balance = fresh
		err = s.ledger.SetBalance(ctx, userID.String(), balance.Version, balance.Balance+req.Amount, record.IdempotencyKey)
		if errors.Is(err, ledgerclient.ErrVersionConflict) {
			return nil, s.failDebit(ctx, record, ErrTransferConflict)
		}
	}
	if err != nil {
		if errors.Is(err, ledgerclient.ErrAccountNotFound) {
			return nil, s.failDebit(ctx, record, ErrSenderNotFound)
		}
		return nil, s.failDebit(ctx, record, fmt.Errorf("%w: credit not confirmed", ledgerclient.ErrStoreUnavailable))
	}

	if err := s.repo.MarkCompleted(ctx, record.ID); err != nil {
		diagnostic := "topup credit applied but the completed status write failed"
		log.Printf("level=error component=orchestrator op=topup transaction_id=%s msg=%q err=%v", record.ID, diagnostic, err)
		s.alertReconciliation(record, diagnostic)
		return nil, &IntegrityError{TransactionID: record.ID, Diagnostic: diagnostic, Cause: err}
	}
	record.Status = domain.StatusCompleted

	return &domain.PaymentResult{Transaction: record, NewSenderBalance: balance.Balance + req.Amount}, nil
}

// GetTransaction retrieves a single transaction record.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.repo.FindByID(ctx, id)
}

// ListTransactions returns the most recent transaction records.
func (s *Service) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.repo.ListAll(ctx, limit)
}

// HistoryForAccount returns records touching the account as sender, recipient,
// or legacy owner, newest first.
func (s *Service) HistoryForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return s.repo.ListForAccount(ctx, accountID, limit)
}

// HealthStatus is the aggregate health view for the payment service.
type HealthStatus struct {
	Status       string `json:"status"` // healthy | degraded | unhealthy
	LedgerStore  string `json:"ledger_store"`
	BalanceStore string `json:"balance_store"`
}

// Health reports the payment service's own storage health separately from the
// balance store's reachability.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "healthy", LedgerStore: "ok", BalanceStore: "ok"}

	if err := s.repo.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.LedgerStore = err.Error()
	}
	if err := s.ledger.Health(ctx); err != nil {
		status.BalanceStore = err.Error()
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}
	return status
}

func (s *Service) publishTransferEvent(route string, record *domain.Transaction, reason string) {
	if s.producer == nil {
		return
	}
	event := rabbitmq.TransferEvent{
		TransactionID: record.ID.String(),
		Amount:        record.Amount,
		Status:        record.Status,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	}
	if record.SenderID != nil {
		event.SenderID = record.SenderID.String()
	}
	if record.RecipientID != nil {
		event.RecipientID = record.RecipientID.String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.producer.Publish(ctx, rabbitmq.WalletEventsExchange, route, event); err != nil {
		log.Printf("level=warn component=orchestrator msg=\"event publish failed\" routing_key=%s transaction_id=%s err=%v", route, record.ID, err)
	}
}

func (s *Service) alertReconciliation(record *domain.Transaction, diagnostic string) {
	if s.producer == nil {
		return
	}
	alert := rabbitmq.ReconciliationAlert{
		TransactionID: record.ID.String(),
		Amount:        record.Amount,
		Diagnostic:    diagnostic,
		Timestamp:     time.Now().UTC(),
	}
	if record.SenderID != nil {
		alert.SenderID = record.SenderID.String()
	}
	if record.RecipientID != nil {
		alert.RecipientID = record.RecipientID.String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.producer.Publish(ctx, rabbitmq.WalletEventsExchange, rabbitmq.RouteIntegrityAlert, alert); err != nil {
		log.Printf("level=error component=orchestrator msg=\"integrity alert publish failed\" transaction_id=%s err=%v", record.ID, err)
	}
}
