/**
 * @description
 * This file contains the core business logic for the ledger service. The
 * `Service` struct enforces the balance invariants (never negative, always
 * version-conditioned) in front of the repository, and owns account lifecycle
 * operations.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID generation.
 * - internal/ledger/domain, internal/ledger/store: For domain models and data access.
 */
package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/ledger/domain"
	"github.com/paystream/wallet-platform/internal/ledger/store"
)

var (
	ErrInvalidAccountInput = errors.New("name and email are required")
	ErrNegativeBalance     = errors.New("balance cannot be negative")
)

// Service provides the core business logic for the ledger service.
type Service struct {
	repo store.Repository
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// CreateAccount validates and creates a new account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, ErrInvalidAccountInput
	}

	account := &domain.Account{
		ID:    uuid.New(),
		Name:  name,
		Email: email,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	log.Printf("level=info component=ledger op=create_account account_id=%s", account.ID)
	return account, nil
}

// GetAccount returns the full account view, balance and version included.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, id)
}

// ListAccounts returns accounts, newest first.
func (s *Service) ListAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	return s.repo.ListAccounts(ctx, limit)
}

// GetBalance returns the versioned balance snapshot for an account.
func (s *Service) GetBalance(ctx context.Context, id uuid.UUID) (*domain.BalanceSnapshot, error) {
	account, err := s.repo.FindAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.BalanceSnapshot{AccountID: account.ID, Balance: account.Balance, Version: account.Version}, nil
}

// SetBalance applies a version-conditioned balance write. The negative check
// runs before the repository is touched so an invalid request can never
// consume a version bump.
func (s *Service) SetBalance(ctx context.Context, id uuid.UUID, req domain.SetBalanceRequest) (*domain.BalanceSnapshot, error) {
	if req.NewBalance < 0 {
		return nil, ErrNegativeBalance
	}
	snapshot, err := s.repo.SetBalanceConditional(ctx, id, req.ExpectedVersion, req.NewBalance)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			log.Printf("level=warn component=ledger op=set_balance outcome=conflict account_id=%s expected_version=%d", id, req.ExpectedVersion)
		}
		return nil, err
	}
	log.Printf("level=info component=ledger op=set_balance outcome=ok account_id=%s balance=%d version=%d", id, snapshot.Balance, snapshot.Version)
	return snapshot, nil
}

// UpdateProfile updates profile fields only; balance and version are immutable here.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, req domain.UpdateAccountRequest) (*domain.Account, error) {
	if req.Name == nil && req.Email == nil {
		return s.repo.FindAccountByID(ctx, id)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, ErrInvalidAccountInput
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) == "" {
		return nil, ErrInvalidAccountInput
	}
	return s.repo.UpdateAccountProfile(ctx, id, req.Name, req.Email)
}

// DeleteAccount removes an account.
func (s *Service) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteAccount(ctx, id)
}

// Healthy reports whether the backing store is reachable.
func (s *Service) Healthy(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
