package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/ledger/domain"
	"github.com/paystream/wallet-platform/internal/ledger/store"
)

type accountRepoStub struct {
	accounts map[uuid.UUID]*domain.Account
	emails   map[string]bool
}

func newAccountRepoStub() *accountRepoStub {
	return &accountRepoStub{
		accounts: map[uuid.UUID]*domain.Account{},
		emails:   map[string]bool{},
	}
}

func (s *accountRepoStub) CreateAccount(ctx context.Context, account *domain.Account) error {
	if s.emails[account.Email] {
		return store.ErrDuplicateEmail
	}
	account.Balance = 0
	account.Version = 1
	account.CreatedAt = time.Now().UTC()
	s.accounts[account.ID] = account
	s.emails[account.Email] = true
	return nil
}

func (s *accountRepoStub) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *accountRepoStub) ListAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *accountRepoStub) UpdateAccountProfile(ctx context.Context, id uuid.UUID, name, email *string) (*domain.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if name != nil {
		account.Name = *name
	}
	if email != nil {
		account.Email = *email
	}
	return account, nil
}

func (s *accountRepoStub) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.accounts[id]; !ok {
		return store.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *accountRepoStub) SetBalanceConditional(ctx context.Context, id uuid.UUID, expectedVersion, newBalance int64) (*domain.BalanceSnapshot, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if account.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}
	account.Balance = newBalance
	account.Version++
	return &domain.BalanceSnapshot{AccountID: id, Balance: account.Balance, Version: account.Version}, nil
}

func (s *accountRepoStub) Ping(ctx context.Context) error { return nil }

func seedAccount(t *testing.T, svc *Service, balance int64) *domain.Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), domain.CreateAccountRequest{
		Name:  "Ada",
		Email: uuid.NewString() + "@example.com",
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if balance > 0 {
		if _, err := svc.SetBalance(context.Background(), account.ID, domain.SetBalanceRequest{
			ExpectedVersion: account.Version,
			NewBalance:      balance,
		}); err != nil {
			t.Fatalf("seed balance failed: %v", err)
		}
	}
	return account
}

func TestCreateAccount_StartsAtZeroWithVersionOne(t *testing.T) {
	svc := NewService(newAccountRepoStub())

	account, err := svc.CreateAccount(context.Background(), domain.CreateAccountRequest{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Balance != 0 || account.Version != 1 {
		t.Fatalf("expected zero balance at version 1, got balance=%d version=%d", account.Balance, account.Version)
	}
}

func TestCreateAccount_RejectsMissingFields(t *testing.T) {
	svc := NewService(newAccountRepoStub())

	_, err := svc.CreateAccount(context.Background(), domain.CreateAccountRequest{Name: "  ", Email: ""})
	if !errors.Is(err, ErrInvalidAccountInput) {
		t.Fatalf("expected ErrInvalidAccountInput, got %v", err)
	}
}

func TestSetBalance_BumpsVersion(t *testing.T) {
	svc := NewService(newAccountRepoStub())
	account := seedAccount(t, svc, 0)

	snapshot, err := svc.SetBalance(context.Background(), account.ID, domain.SetBalanceRequest{
		ExpectedVersion: 1,
		NewBalance:      500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.Balance != 500 || snapshot.Version != 2 {
		t.Fatalf("expected balance 500 at version 2, got %+v", snapshot)
	}
}

func TestSetBalance_StaleVersionConflicts(t *testing.T) {
	svc := NewService(newAccountRepoStub())
	account := seedAccount(t, svc, 500)

	// The seed write bumped the version to 2; expecting 1 is stale.
	_, err := svc.SetBalance(context.Background(), account.ID, domain.SetBalanceRequest{
		ExpectedVersion: 1,
		NewBalance:      900,
	})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	// The losing write must not have consumed a version bump.
	snapshot, err := svc.GetBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.Balance != 500 || snapshot.Version != 2 {
		t.Fatalf("expected untouched balance 500 at version 2, got %+v", snapshot)
	}
}

func TestSetBalance_RejectsNegativeWithoutVersionBump(t *testing.T) {
	svc := NewService(newAccountRepoStub())
	account := seedAccount(t, svc, 500)

	_, err := svc.SetBalance(context.Background(), account.ID, domain.SetBalanceRequest{
		ExpectedVersion: 2,
		NewBalance:      -1,
	})
	if !errors.Is(err, ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}

	snapshot, err := svc.GetBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.Version != 2 {
		t.Fatalf("rejected write must not bump the version, got %d", snapshot.Version)
	}
}

func TestUpdateProfile_NeverTouchesBalance(t *testing.T) {
	svc := NewService(newAccountRepoStub())
	account := seedAccount(t, svc, 500)

	name := "Grace"
	updated, err := svc.UpdateProfile(context.Background(), account.ID, domain.UpdateAccountRequest{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Grace" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}
	if updated.Balance != 500 || updated.Version != 2 {
		t.Fatalf("profile update must not touch balance or version, got balance=%d version=%d", updated.Balance, updated.Version)
	}
}
