package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/payment/domain"
)

func newTestReconciler(repo *memRepo, producer *producerStub, grace time.Duration) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReconciler(repo, producer, logger, "@every 1m", grace)
}

func seedPending(t *testing.T, repo *memRepo, age time.Duration) *domain.Transaction {
	t.Helper()
	sender, recipient := uuid.New(), uuid.New()
	tx := &domain.Transaction{
		ID:             uuid.New(),
		IdempotencyKey: uuid.NewString(),
		SenderID:       &sender,
		RecipientID:    &recipient,
		Kind:           domain.KindPayment,
		Amount:         100,
	}
	if err := repo.InsertPending(context.Background(), tx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	tx.CreatedAt = time.Now().UTC().Add(-age)
	return tx
}

func TestSweepStalePending_FlagsOnlyStaleRecords(t *testing.T) {
	repo := newMemRepo()
	producer := &producerStub{}
	reconciler := newTestReconciler(repo, producer, 5*time.Minute)

	stale := seedPending(t, repo, 10*time.Minute)
	fresh := seedPending(t, repo, 1*time.Minute)

	flagged, err := reconciler.SweepStalePending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged record, got %d", flagged)
	}
	if _, ok := repo.flagged[stale.ID]; !ok {
		t.Fatal("expected the stale record to be flagged")
	}
	if _, ok := repo.flagged[fresh.ID]; ok {
		t.Fatal("in-flight record must not be flagged")
	}
	if !producer.published("transfer.reconciliation.required") {
		t.Fatal("expected reconciliation alert event")
	}
}

func TestSweepStalePending_FlagsOnlyOnce(t *testing.T) {
	repo := newMemRepo()
	producer := &producerStub{}
	reconciler := newTestReconciler(repo, producer, 5*time.Minute)

	seedPending(t, repo, 10*time.Minute)

	if _, err := reconciler.SweepStalePending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flagged, err := reconciler.SweepStalePending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 0 {
		t.Fatalf("second sweep must not re-flag, got %d", flagged)
	}
	if len(producer.routes) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(producer.routes))
	}
}

func TestSweepStalePending_IgnoresResolvedRecords(t *testing.T) {
	repo := newMemRepo()
	producer := &producerStub{}
	reconciler := newTestReconciler(repo, producer, 5*time.Minute)

	done := seedPending(t, repo, 10*time.Minute)
	if err := repo.MarkCompleted(context.Background(), done.ID); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	flagged, err := reconciler.SweepStalePending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 0 {
		t.Fatalf("completed records must not be flagged, got %d", flagged)
	}
}
