package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/payment/domain"
	"github.com/paystream/wallet-platform/internal/payment/store"
	"github.com/paystream/wallet-platform/pkg/ledgerclient"
)

type memRepo struct {
	byID    map[uuid.UUID]*domain.Transaction
	byKey   map[string]*domain.Transaction
	flagged map[uuid.UUID]string

	insertErr   error
	completeErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		byID:    map[uuid.UUID]*domain.Transaction{},
		byKey:   map[string]*domain.Transaction{},
		flagged: map[uuid.UUID]string{},
	}
}

func (m *memRepo) InsertPending(ctx context.Context, tx *domain.Transaction) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, exists := m.byKey[tx.IdempotencyKey]; exists {
		return store.ErrDuplicateKey
	}
	tx.Status = domain.StatusPending
	tx.CreatedAt = time.Now().UTC()
	m.byID[tx.ID] = tx
	m.byKey[tx.IdempotencyKey] = tx
	return nil
}

func (m *memRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	tx, ok := m.byID[id]
	if !ok || tx.Status != domain.StatusPending {
		return store.ErrTransactionNotFound
	}
	tx.Status = domain.StatusCompleted
	return nil
}

func (m *memRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tx, ok := m.byID[id]
	if !ok || tx.Status != domain.StatusPending {
		return store.ErrTransactionNotFound
	}
	tx.Status = domain.StatusFailed
	tx.FailureReason = &reason
	return nil
}

func (m *memRepo) FlagForReconciliation(ctx context.Context, id uuid.UUID, diagnostic string) error {
	tx, ok := m.byID[id]
	if !ok {
		return store.ErrTransactionNotFound
	}
	if _, already := m.flagged[id]; already {
		return nil
	}
	m.flagged[id] = diagnostic
	now := time.Now().UTC()
	tx.ReconcileFlaggedAt = &now
	return nil
}

func (m *memRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, ok := m.byID[id]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *memRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	tx, ok := m.byKey[key]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *memRepo) ListForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range m.byID {
		if (tx.SenderID != nil && *tx.SenderID == accountID) ||
			(tx.RecipientID != nil && *tx.RecipientID == accountID) ||
			(tx.UserID != nil && *tx.UserID == accountID) {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memRepo) ListAll(ctx context.Context, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range m.byID {
		out = append(out, *tx)
	}
	return out, nil
}

func (m *memRepo) FindStalePending(ctx context.Context, olderThan time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range m.byID {
		if tx.Status == domain.StatusPending && tx.ReconcileFlaggedAt == nil && tx.CreatedAt.Before(olderThan) {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memRepo) Ping(ctx context.Context) error { return nil }

type setCall struct {
	accountID string
	version   int64
	balance   int64
	ref       string
}

// ledgerStub simulates the balance store's version-conditioned writes. Forced
// results can be queued per account; a nil entry means "apply normally".
type ledgerStub struct {
	balances map[string]*ledgerclient.Balance
	setErrs  map[string][]error
	getErrs  map[string]error
	setCalls []setCall
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{
		balances: map[string]*ledgerclient.Balance{},
		setErrs:  map[string][]error{},
		getErrs:  map[string]error{},
	}
}

func (l *ledgerStub) seed(id uuid.UUID, balance, version int64) {
	l.balances[id.String()] = &ledgerclient.Balance{AccountID: id.String(), Balance: balance, Version: version}
}

func (l *ledgerStub) GetBalance(ctx context.Context, accountID string) (*ledgerclient.Balance, error) {
	if err, ok := l.getErrs[accountID]; ok {
		return nil, err
	}
	b, ok := l.balances[accountID]
	if !ok {
		return nil, ledgerclient.ErrAccountNotFound
	}
	copied := *b
	return &copied, nil
}

func (l *ledgerStub) GetAccount(ctx context.Context, accountID string) (*ledgerclient.Account, error) {
	if _, ok := l.balances[accountID]; !ok {
		return nil, ledgerclient.ErrAccountNotFound
	}
	return &ledgerclient.Account{ID: accountID}, nil
}

func (l *ledgerStub) SetBalance(ctx context.Context, accountID string, expectedVersion, newBalance int64, ref string) error {
	l.setCalls = append(l.setCalls, setCall{accountID: accountID, version: expectedVersion, balance: newBalance, ref: ref})

	if queue := l.setErrs[accountID]; len(queue) > 0 {
		forced := queue[0]
		l.setErrs[accountID] = queue[1:]
		if forced != nil {
			return forced
		}
	}

	b, ok := l.balances[accountID]
	if !ok {
		return ledgerclient.ErrAccountNotFound
	}
	if b.Version != expectedVersion {
		return ledgerclient.ErrVersionConflict
	}
	b.Balance = newBalance
	b.Version++
	return nil
}

func (l *ledgerStub) Health(ctx context.Context) error { return nil }

func (l *ledgerStub) total() int64 {
	var sum int64
	for _, b := range l.balances {
		sum += b.Balance
	}
	return sum
}

type producerStub struct {
	routes []string
}

func (p *producerStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routes = append(p.routes, routingKey)
	return nil
}

func (p *producerStub) Close() {}

func (p *producerStub) published(route string) bool {
	for _, r := range p.routes {
		if r == route {
			return true
		}
	}
	return false
}

func newTestService() (*Service, *memRepo, *ledgerStub, *producerStub) {
	repo := newMemRepo()
	ledger := newLedgerStub()
	producer := &producerStub{}
	return NewService(repo, ledger, producer), repo, ledger, producer
}

func TestProcessPayment_Success(t *testing.T) {
	svc, repo, ledger, producer := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 200, 1)

	result, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      300,
	}, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Transaction.Status != domain.StatusCompleted {
		t.Fatalf("expected completed status, got %s", result.Transaction.Status)
	}
	if result.NewSenderBalance != 700 {
		t.Fatalf("expected sender balance 700, got %d", result.NewSenderBalance)
	}
	if got := ledger.balances[recipient.String()].Balance; got != 500 {
		t.Fatalf("expected recipient balance 500, got %d", got)
	}
	if ledger.total() != 1200 {
		t.Fatalf("value not conserved: total %d", ledger.total())
	}
	if stored := repo.byKey["key-1"]; stored == nil || stored.Status != domain.StatusCompleted {
		t.Fatal("expected completed record under the idempotency key")
	}
	if !producer.published("transfer.completed") {
		t.Fatal("expected transfer.completed event")
	}

	// Debit must land before the credit.
	if len(ledger.setCalls) != 2 || ledger.setCalls[0].accountID != sender.String() {
		t.Fatalf("expected debit before credit, calls: %+v", ledger.setCalls)
	}
}

func TestProcessPayment_SelfTransferRejected(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	account := uuid.New()
	ledger.seed(account, 1000, 1)

	_, err := svc.ProcessPayment(context.Background(), account, domain.PaymentRequest{
		RecipientID: account,
		Amount:      100,
	}, "key-self")
	if !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
	if len(ledger.setCalls) != 0 {
		t.Fatal("expected no balance mutations")
	}
	if stored := repo.byKey["key-self"]; stored == nil || stored.Status != domain.StatusFailed {
		t.Fatal("expected a failed record for the rejected transfer")
	}
}

func TestProcessPayment_NonPositiveAmountRejected(t *testing.T) {
	svc, _, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)

	for _, amount := range []int64{0, -50} {
		_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
			RecipientID: recipient,
			Amount:      amount,
		}, uuid.NewString())
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if len(ledger.setCalls) != 0 {
		t.Fatal("expected no balance mutations")
	}
}

func TestProcessPayment_InsufficientFunds(t *testing.T) {
	svc, _, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 100, 1)
	ledger.seed(recipient, 0, 1)

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      500,
	}, "key-poor")

	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if insufficient.CurrentBalance != 100 || insufficient.Required != 500 {
		t.Fatalf("unexpected amounts: %+v", insufficient)
	}
	if len(ledger.setCalls) != 0 {
		t.Fatal("expected no balance mutations")
	}
}

func TestProcessPayment_RecipientMissing(t *testing.T) {
	svc, _, ledger, _ := newTestService()
	sender := uuid.New()
	ledger.seed(sender, 1000, 1)

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: uuid.New(),
		Amount:      100,
	}, "key-missing")
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
	if len(ledger.setCalls) != 0 {
		t.Fatal("expected no balance mutations")
	}
}

func TestProcessPayment_DebitConflictRetriedOnce(t *testing.T) {
	svc, _, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)
	// First debit hits a conflict; the retry re-reads and succeeds.
	ledger.setErrs[sender.String()] = []error{ledgerclient.ErrVersionConflict}

	result, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      400,
	}, "key-conflict")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewSenderBalance != 600 {
		t.Fatalf("expected sender balance 600, got %d", result.NewSenderBalance)
	}
	if ledger.total() != 1000 {
		t.Fatalf("value not conserved: total %d", ledger.total())
	}
}

func TestProcessPayment_DebitConflictTwiceFails(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)
	ledger.setErrs[sender.String()] = []error{ledgerclient.ErrVersionConflict, ledgerclient.ErrVersionConflict}

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      400,
	}, "key-conflict2")
	if !errors.Is(err, ErrTransferConflict) {
		t.Fatalf("expected ErrTransferConflict, got %v", err)
	}
	if stored := repo.byKey["key-conflict2"]; stored == nil || stored.Status != domain.StatusFailed {
		t.Fatal("expected a failed record after exhausted retries")
	}
	if got := ledger.balances[sender.String()].Balance; got != 1000 {
		t.Fatalf("sender balance must be untouched, got %d", got)
	}
}

func TestProcessPayment_IdempotentReplay(t *testing.T) {
	svc, _, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)

	req := domain.PaymentRequest{RecipientID: recipient, Amount: 250}
	first, err := svc.ProcessPayment(context.Background(), sender, req, "key-replay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := svc.ProcessPayment(context.Background(), sender, req, "key-replay")
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replayed result")
	}
	if second.Transaction.ID != first.Transaction.ID {
		t.Fatal("replay must return the original record")
	}
	// The replay must not execute the mutations again.
	if len(ledger.setCalls) != 2 {
		t.Fatalf("expected exactly 2 balance writes, got %d", len(ledger.setCalls))
	}
	if got := ledger.balances[sender.String()].Balance; got != 750 {
		t.Fatalf("expected sender balance 750, got %d", got)
	}
}

func TestProcessPayment_IdempotencyKeyDifferentPayload(t *testing.T) {
	svc, _, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)

	if _, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      250,
	}, "key-fp"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      999,
	}, "key-fp")
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestProcessPayment_ReplayWhilePending(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)

	pending := &domain.Transaction{
		ID:                 uuid.New(),
		IdempotencyKey:     "key-pending",
		RequestFingerprint: fingerprint(sender.String(), recipient.String(), "250"),
		SenderID:           &sender,
		RecipientID:        &recipient,
		Kind:               domain.KindPayment,
		Amount:             250,
	}
	if err := repo.InsertPending(context.Background(), pending); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      250,
	}, "key-pending")
	if !errors.Is(err, ErrTransferInProgress) {
		t.Fatalf("expected ErrTransferInProgress, got %v", err)
	}
}

func TestProcessPayment_CreditFailureCompensates(t *testing.T) {
	svc, repo, ledger, producer := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)
	// Every credit attempt fails: first try plus the one conflict retry.
	unavailable := ledgerclient.ErrStoreUnavailable
	ledger.setErrs[recipient.String()] = []error{unavailable, unavailable}

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      300,
	}, "key-comp")
	if !errors.Is(err, ledgerclient.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	// The compensating credit restored the sender in full.
	if got := ledger.balances[sender.String()].Balance; got != 1000 {
		t.Fatalf("expected sender restored to 1000, got %d", got)
	}
	stored := repo.byKey["key-comp"]
	if stored == nil || stored.Status != domain.StatusFailed {
		t.Fatal("expected a failed record after reversal")
	}
	if !producer.published("transfer.reversed") {
		t.Fatal("expected transfer.reversed event")
	}

	// The reversal must carry a distinct idempotency reference.
	last := ledger.setCalls[len(ledger.setCalls)-1]
	if last.ref != "key-comp:comp" {
		t.Fatalf("expected compensation ref key-comp:comp, got %s", last.ref)
	}
}

func TestProcessPayment_CompensationFailureFlagsRecord(t *testing.T) {
	svc, repo, ledger, producer := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)
	unavailable := ledgerclient.ErrStoreUnavailable
	// Credit fails both attempts; the compensation writes fail too. The debit
	// (first sender write) goes through normally.
	ledger.setErrs[recipient.String()] = []error{unavailable, unavailable}
	ledger.setErrs[sender.String()] = []error{nil, unavailable, unavailable}

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      300,
	}, "key-integrity")

	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}

	stored := repo.byKey["key-integrity"]
	if stored == nil {
		t.Fatal("expected a stored record")
	}
	if stored.Status != domain.StatusPending {
		t.Fatalf("unresolved record must stay pending, got %s", stored.Status)
	}
	if _, flagged := repo.flagged[stored.ID]; !flagged {
		t.Fatal("expected record flagged for reconciliation")
	}
	if !producer.published("transfer.integrity.alert") {
		t.Fatal("expected integrity alert event")
	}
}

func TestProcessPayment_StoreUnavailableDuringDebit(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	sender, recipient := uuid.New(), uuid.New()
	ledger.seed(sender, 1000, 1)
	ledger.seed(recipient, 0, 1)
	ledger.setErrs[sender.String()] = []error{ledgerclient.ErrStoreUnavailable}

	_, err := svc.ProcessPayment(context.Background(), sender, domain.PaymentRequest{
		RecipientID: recipient,
		Amount:      300,
	}, "key-unavail")
	if !errors.Is(err, ledgerclient.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if stored := repo.byKey["key-unavail"]; stored == nil || stored.Status != domain.StatusFailed {
		t.Fatal("expected a failed record, not a silent drop")
	}
}

func TestProcessTopUp_Success(t *testing.T) {
	svc, repo, ledger, _ := newTestService()
	account := uuid.New()
	ledger.seed(account, 100, 1)

	result, err := svc.ProcessTopUp(context.Background(), account, domain.TopUpRequest{Amount: 900}, "key-topup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewSenderBalance != 1000 {
		t.Fatalf("expected balance 1000, got %d", result.NewSenderBalance)
	}
	if stored := repo.byKey["key-topup"]; stored == nil || stored.Kind != domain.KindTopUp || stored.Status != domain.StatusCompleted {
		t.Fatal("expected a completed topup record")
	}
}

func TestHealth_DegradedWhenLedgerDown(t *testing.T) {
	repo := newMemRepo()
	producer := &producerStub{}
	ledger := &failingHealthStub{ledgerStub: newLedgerStub()}
	svc := NewService(repo, ledger, producer)

	status := svc.Health(context.Background())
	if status.Status != "degraded" {
		t.Fatalf("expected degraded, got %s", status.Status)
	}
}

type failingHealthStub struct {
	*ledgerStub
}

func (f *failingHealthStub) Health(ctx context.Context) error {
	return ledgerclient.ErrStoreUnavailable
}
