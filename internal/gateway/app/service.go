/**
 * @description
 * This file contains the core business logic for the API gateway: credential
 * verification and token issuance. Passwords are stored as bcrypt hashes and
 * never logged; tokens are HS256 JWTs carrying the ledger account ID as the
 * subject so downstream services receive a verified identity.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: For signing session tokens.
 * - golang.org/x/crypto/bcrypt: For password hashing and comparison.
 * - internal/gateway/domain, internal/gateway/store: For models and data access.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/gateway/domain"
	"github.com/paystream/wallet-platform/internal/gateway/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUserInput   = errors.New("username, password and account_id are required")
	ErrRateLimited        = errors.New("too many login attempts")
)

const defaultTokenTTL = 24 * time.Hour

// RateLimiter is the limiter surface the login flow depends on.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides authentication logic for the gateway.
type Service struct {
	repo        store.UserRepository
	jwtSecret   []byte
	tokenTTL    time.Duration
	limiter     RateLimiter
	loginLimit  int
	loginWindow time.Duration
}

// NewService creates a gateway service. A nil limiter disables login rate
// limiting.
func NewService(repo store.UserRepository, jwtSecret string, limiter RateLimiter, loginLimit int, loginWindow time.Duration) *Service {
	return &Service{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    defaultTokenTTL,
		limiter:     limiter,
		loginLimit:  loginLimit,
		loginWindow: loginWindow,
	}
}

// Login verifies the credentials and returns a signed token. Rate limiting is
// keyed on username plus client IP so one abusive source cannot lock out a
// user from elsewhere.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest, clientIP string) (*domain.TokenResponse, int, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, 0, ErrInvalidCredentials
	}

	if s.limiter != nil && s.loginLimit > 0 {
		subject := fmt.Sprintf("%s|%s", strings.ToLower(username), clientIP)
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "login", subject, s.loginLimit, s.loginWindow)
		if err != nil {
			// Redis being down must not block logins.
			log.Printf("level=warn component=auth msg=\"rate limiter unavailable; allowing login attempt\" err=%v", err)
		} else if count > s.loginLimit {
			log.Printf("level=warn component=auth outcome=rate_limited username=%s ip=%s", username, clientIP)
			return nil, retryAfter, ErrRateLimited
		}
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, 0, ErrInvalidCredentials
		}
		return nil, 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, 0, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to sign token: %w", err)
	}

	log.Printf("level=info component=auth outcome=login username=%s account_id=%s", user.Username, user.AccountID)
	return &domain.TokenResponse{Token: token, User: *user}, 0, nil
}

// Register creates a gateway credential bound to a ledger account.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.GatewayUser, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" || req.AccountID == uuid.Nil {
		return nil, ErrInvalidUserInput
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = "user"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.GatewayUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		AccountID:    req.AccountID,
		Role:         role,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyToken parses and validates an HS256 token, returning its claims.
func (s *Service) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Healthy verifies the credential store is reachable.
func (s *Service) Healthy(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) issueToken(user *domain.GatewayUser) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.AccountID.String(),
		"username": user.Username,
		"role":     user.Role,
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
