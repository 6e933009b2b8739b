/**
 * @description
 * This file contains the HTTP handlers for the payment service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the saga
 * orchestration logic, mapping the service's error taxonomy onto HTTP status
 * codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/payment/app, internal/payment/domain, internal/payment/store: For service logic, models, and custom errors.
 * - pkg/ledgerclient: For the balance-store error sentinels.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/payment/app"
	"github.com/paystream/wallet-platform/internal/payment/domain"
	"github.com/paystream/wallet-platform/internal/payment/store"
	"github.com/paystream/wallet-platform/pkg/ledgerclient"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service      *app.Service
	defaultLimit int
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service, defaultLimit int) *PaymentHandlers {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &PaymentHandlers{service: service, defaultLimit: defaultLimit}
}

// transferResponse is the body returned for an executed or replayed transfer.
type transferResponse struct {
	TransactionID    string  `json:"transaction_id"`
	Status           string  `json:"status"`
	Message          string  `json:"message"`
	Amount           int64   `json:"amount"`
	NewSenderBalance int64   `json:"new_sender_balance"`
	FailureReason    *string `json:"failure_reason,omitempty"`
}

type errorResponse struct {
	Error          string `json:"error"`
	CurrentBalance *int64 `json:"current_balance,omitempty"`
	Required       *int64 `json:"required,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
}

// PaymentHandler handles POST /transactions/payment, the transfer saga entry
// point. The sender identity comes exclusively from the gateway-stamped
// header; any sender field in the body is ignored.
func (h *PaymentHandlers) PaymentHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := GetAuthedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=payment outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	result, err := h.service.ProcessPayment(r.Context(), senderID, req, idempotencyKey)
	if err != nil {
		h.writeTransferError(w, senderID, err)
		return
	}

	status := http.StatusCreated
	message := "Transfer completed"
	if result.Replayed {
		status = http.StatusOK
		message = "Transfer already processed"
	}
	h.writeJSON(w, status, transferResponse{
		TransactionID:    result.Transaction.ID.String(),
		Status:           result.Transaction.Status,
		Message:          message,
		Amount:           result.Transaction.Amount,
		NewSenderBalance: result.NewSenderBalance,
		FailureReason:    result.Transaction.FailureReason,
	})
}

// TopUpHandler handles POST /transactions/topup, crediting the caller's own
// account.
func (h *PaymentHandlers) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=topup outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	result, err := h.service.ProcessTopUp(r.Context(), userID, req, idempotencyKey)
	if err != nil {
		h.writeTransferError(w, userID, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, transferResponse{
		TransactionID:    result.Transaction.ID.String(),
		Status:           result.Transaction.Status,
		Message:          "Top-up completed",
		Amount:           result.Transaction.Amount,
		NewSenderBalance: result.NewSenderBalance,
		FailureReason:    result.Transaction.FailureReason,
	})
}

// writeTransferError maps the orchestrator's error taxonomy to HTTP statuses.
func (h *PaymentHandlers) writeTransferError(w http.ResponseWriter, userID uuid.UUID, err error) {
	var insufficient *app.InsufficientFundsError
	var integrity *app.IntegrityError

	switch {
	case errors.As(err, &insufficient):
		h.writeError(w, http.StatusBadRequest, errorResponse{
			Error:          "Insufficient balance",
			CurrentBalance: &insufficient.CurrentBalance,
			Required:       &insufficient.Required,
		})
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrSelfTransfer):
		h.writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, app.ErrSenderNotFound), errors.Is(err, app.ErrRecipientNotFound):
		h.writeError(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, app.ErrIdempotencyConflict),
		errors.Is(err, app.ErrTransferInProgress),
		errors.Is(err, app.ErrTransferConflict):
		h.writeError(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &integrity):
		log.Printf("level=error component=api endpoint=payment outcome=integrity user_id=%s transaction_id=%s err=%v", userID, integrity.TransactionID, err)
		h.writeError(w, http.StatusServiceUnavailable, errorResponse{
			Error:         "Transfer could not be resolved and requires reconciliation",
			TransactionID: integrity.TransactionID.String(),
		})
	case errors.Is(err, ledgerclient.ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, errorResponse{Error: "Balance store unavailable"})
	default:
		log.Printf("level=error component=api endpoint=payment outcome=error user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

// HistoryHandler handles GET /transactions/history?accountId=...&limit=...,
// returning records where the account is sender or recipient, newest first.
func (h *PaymentHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	accountIDStr := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountIDStr == "" {
		if authed, ok := GetAuthedUserID(r.Context()); ok {
			accountIDStr = authed.String()
		}
	}
	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid or missing accountId"})
		return
	}

	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid limit"})
			return
		}
		limit = parsed
	}

	transactions, err := h.service.HistoryForAccount(r.Context(), accountID, limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=history account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// ListTransactionsHandler handles GET /transactions.
func (h *PaymentHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid limit"})
			return
		}
		limit = parsed
	}

	transactions, err := h.service.ListTransactions(r.Context(), limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions err=%v", err)
		h.writeError(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// GetTransactionHandler handles GET /transactions/{id}.
func (h *PaymentHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid transaction ID"})
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, errorResponse{Error: "Transaction not found"})
			return
		}
		log.Printf("level=error component=api endpoint=get_transaction transaction_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HealthHandler reports the service's aggregate health. Degraded means the
// payment service is up but the balance store is unreachable.
func (h *PaymentHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.service.Health(r.Context())

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, status)
}

func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, body errorResponse) {
	h.writeJSON(w, status, body)
}
