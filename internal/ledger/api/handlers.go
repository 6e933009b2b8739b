/**
 * @description
 * HTTP handlers for the ledger service's API endpoints. Handlers parse
 * requests, call the application service, and map domain errors onto HTTP
 * status codes. The conditional balance write is the endpoint the payment
 * service's saga depends on; its 409/404 distinction is load-bearing.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/ledger/app, internal/ledger/domain, internal/ledger/store: For
 *   service logic, models, and sentinel errors.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/ledger/app"
	"github.com/paystream/wallet-platform/internal/ledger/domain"
	"github.com/paystream/wallet-platform/internal/ledger/store"
)

// AccountHandlers holds the application service that handlers will use.
type AccountHandlers struct {
	service *app.Service
}

// NewAccountHandlers creates a new instance of AccountHandlers.
func NewAccountHandlers(service *app.Service) *AccountHandlers {
	return &AccountHandlers{service: service}
}

// CreateAccountHandler handles POST /accounts.
func (h *AccountHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAccountInput):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicateEmail):
			h.writeError(w, http.StatusConflict, "Email already registered")
		default:
			log.Printf("level=error component=api endpoint=create_account err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Could not create account")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// ListAccountsHandler handles GET /accounts.
func (h *AccountHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	accounts, err := h.service.ListAccounts(r.Context(), limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not list accounts")
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler handles GET /accounts/{id}.
func (h *AccountHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseAccountID(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_account account_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Could not load account")
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetBalanceHandler handles GET /accounts/{id}/balance.
func (h *AccountHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseAccountID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_balance account_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Could not load balance")
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// SetBalanceHandler handles PUT /accounts/{id}/balance, the version-conditioned
// write. 409 means the caller's version is stale and it must re-read.
func (h *AccountHandlers) SetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseAccountID(w, r)
	if !ok {
		return
	}
	var req domain.SetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if ref := r.Header.Get("X-Request-Ref"); ref != "" {
		log.Printf("level=info component=api endpoint=set_balance account_id=%s request_ref=%s expected_version=%d", id, ref, req.ExpectedVersion)
	}

	snapshot, err := h.service.SetBalance(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNegativeBalance):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		case errors.Is(err, store.ErrVersionConflict):
			h.writeError(w, http.StatusConflict, "Version conflict: balance was modified concurrently")
		default:
			log.Printf("level=error component=api endpoint=set_balance account_id=%s err=%v", id, err)
			h.writeError(w, http.StatusInternalServerError, "Could not update balance")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// UpdateAccountHandler handles PUT /accounts/{id} (profile fields only).
func (h *AccountHandlers) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseAccountID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	account, err := h.service.UpdateProfile(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAccountInput):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		case errors.Is(err, store.ErrDuplicateEmail):
			h.writeError(w, http.StatusConflict, "Email already registered")
		default:
			log.Printf("level=error component=api endpoint=update_account account_id=%s err=%v", id, err)
			h.writeError(w, http.StatusInternalServerError, "Could not update account")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// DeleteAccountHandler handles DELETE /accounts/{id}.
func (h *AccountHandlers) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseAccountID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=delete_account account_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Could not delete account")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id.String()})
}

// HealthHandler reports whether the accounts store is reachable.
func (h *AccountHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Healthy(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "ledger-service"})
}

func (h *AccountHandlers) parseAccountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON is a helper for writing JSON responses.
func (h *AccountHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *AccountHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
