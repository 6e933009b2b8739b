/**
 * @description
 * This file contains the HTTP handlers for the API gateway's own endpoints:
 * login, registration, and health. Everything else is proxied to the
 * downstream services.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/gateway/app, internal/gateway/domain, internal/gateway/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/paystream/wallet-platform/internal/gateway/app"
	"github.com/paystream/wallet-platform/internal/gateway/domain"
	"github.com/paystream/wallet-platform/internal/gateway/store"
)

// GatewayHandlers holds the application service that handlers will use.
type GatewayHandlers struct {
	service          *app.Service
	ledgerHealthURL  string
	paymentHealthURL string
	healthClient     *http.Client
}

// NewGatewayHandlers creates a new instance of GatewayHandlers.
func NewGatewayHandlers(service *app.Service, ledgerURL, paymentURL string) *GatewayHandlers {
	return &GatewayHandlers{
		service:          service,
		ledgerHealthURL:  ledgerURL + "/health",
		paymentHealthURL: paymentURL + "/health",
		healthClient:     &http.Client{Timeout: 3 * time.Second},
	}
}

// LoginHandler handles POST /auth/login.
func (h *GatewayHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, retryAfter, err := h.service.Login(r.Context(), req, clientIP(r))
	if err != nil {
		if errors.Is(err, app.ErrRateLimited) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too many login attempts", http.StatusTooManyRequests)
			return
		}
		if errors.Is(err, app.ErrInvalidCredentials) {
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		log.Printf("level=error component=api endpoint=login err=%v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response)
}

// RegisterHandler handles POST /auth/register.
func (h *GatewayHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidUserInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, store.ErrDuplicateUsername) {
			http.Error(w, "Username already taken", http.StatusConflict)
			return
		}
		log.Printf("level=error component=api endpoint=register err=%v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// healthStatus is the aggregate health view for the gateway.
type healthStatus struct {
	Status         string `json:"status"`
	CredentialDB   string `json:"credential_db"`
	LedgerService  string `json:"ledger_service"`
	PaymentService string `json:"payment_service"`
}

// HealthHandler reports the gateway's own health plus the reachability of
// both downstream services.
func (h *GatewayHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "healthy", CredentialDB: "ok", LedgerService: "ok", PaymentService: "ok"}

	if err := h.service.Healthy(r.Context()); err != nil {
		status.Status = "unhealthy"
		status.CredentialDB = err.Error()
	}
	if err := h.probe(r.Context(), h.ledgerHealthURL); err != nil {
		status.LedgerService = err.Error()
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}
	if err := h.probe(r.Context(), h.paymentHealthURL); err != nil {
		status.PaymentService = err.Error()
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, status)
}

func (h *GatewayHandlers) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.healthClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("responded " + strconv.Itoa(resp.StatusCode))
	}
	return nil
}

func (h *GatewayHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
