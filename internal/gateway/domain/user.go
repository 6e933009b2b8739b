/**
 * @description
 * Domain models for the API gateway. Gateway users are the credential records
 * the gateway authenticates against; they are separate from ledger accounts,
 * which hold balances. The `sub` claim of an issued token is the ledger
 * account ID the credential is bound to.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// GatewayUser is a login credential bound to a ledger account.
type GatewayUser struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	AccountID    uuid.UUID `json:"account_id"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	AccountID uuid.UUID `json:"account_id"`
	Role      string    `json:"role"`
}

// TokenResponse is returned on successful login.
type TokenResponse struct {
	Token string      `json:"token"`
	User  GatewayUser `json:"user"`
}
