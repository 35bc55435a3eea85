/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/payhive/wallet-service/internal/app"
	"github.com/payhive/wallet-service/internal/domain"
	"github.com/payhive/wallet-service/internal/store"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// authenticatedUserID pulls the account id placed in the context by the auth
// middleware.
func (h *WalletHandlers) authenticatedUserID(r *http.Request) (uuid.UUID, bool) {
	return GetAuthUserID(r.Context())
}

// PreviewTransferHandler handles requests to preview a transfer before
// confirmation. It validates the payload, resolves both parties, and returns
// the advisory without touching any balance.
func (h *WalletHandlers) PreviewTransferHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := h.authenticatedUserID(r)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.PreviewTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=preview_transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	preview, err := h.service.PreviewTransfer(r.Context(), senderID, req)
	if err != nil {
		status, msg := mapTransferError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=preview_transfer outcome=failed sender_id=%s err=%v", senderID, err)
		} else {
			log.Printf("level=warn component=api endpoint=preview_transfer outcome=reject sender_id=%s err=%v", senderID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, preview)
}

// ConfirmTransferHandler handles requests to confirm and settle a transfer.
// An Idempotency-Key header takes precedence over the body field so clients
// retrying at the transport layer stay idempotent.
func (h *WalletHandlers) ConfirmTransferHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := h.authenticatedUserID(r)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.ConfirmTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=confirm_transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if headerKey := strings.TrimSpace(r.Header.Get("Idempotency-Key")); headerKey != "" {
		req.IdempotencyKey = headerKey
	}

	result, err := h.service.ConfirmTransfer(r.Context(), senderID, req)
	if err != nil {
		h.writeConfirmError(w, senderID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// writeConfirmError maps confirmation failures onto HTTP statuses, attaching
// retry and attempt metadata where the error carries it.
func (h *WalletHandlers) writeConfirmError(w http.ResponseWriter, senderID uuid.UUID, err error) {
	var locked *app.PinLockedError
	if errors.As(err, &locked) {
		retryAfter := int(locked.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeJSON(w, http.StatusLocked, map[string]interface{}{
			"error":      "Too many incorrect PIN attempts. Please wait and try again.",
			"retryAfter": retryAfter,
		})
		return
	}

	var invalidPin *app.InvalidPinError
	if errors.As(err, &invalidPin) {
		h.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":             "Invalid transaction PIN.",
			"attemptsRemaining": invalidPin.AttemptsRemaining,
		})
		return
	}

	var rateLimited *app.RateLimitedError
	if errors.As(err, &rateLimited) {
		retryAfter := int(rateLimited.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many transfer attempts. Please slow down.")
		return
	}

	status, msg := mapTransferError(err)
	if status == http.StatusInternalServerError {
		log.Printf("level=error component=api endpoint=confirm_transfer outcome=failed sender_id=%s err=%v", senderID, err)
	} else {
		log.Printf("level=warn component=api endpoint=confirm_transfer outcome=reject sender_id=%s err=%v", senderID, err)
	}
	h.writeError(w, status, msg)
}

func mapTransferError(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrSenderNotFound):
		return http.StatusNotFound, "Sender account not found."
	case errors.Is(err, app.ErrRecipientNotFound):
		return http.StatusNotFound, "Recipient not found."
	case errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "Insufficient balance."
	case errors.Is(err, app.ErrPinNotSet):
		return http.StatusPreconditionFailed, "Transaction PIN is not set. Please create your PIN first."
	case errors.Is(err, app.ErrIdempotencyKeyReused):
		return http.StatusConflict, "Idempotency key was already used with a different payload."
	case errors.Is(err, app.ErrSelfTransfer),
		errors.Is(err, app.ErrAmountExceedsMax),
		errors.Is(err, app.ErrDailyLimitExceeded),
		errors.Is(err, app.ErrInvalidPhoneNumber),
		errors.Is(err, app.ErrInvalidPinFormat),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrRemarkTooLong),
		errors.Is(err, app.ErrIdempotencyKeyTooShort):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "Could not process transfer request."
}

// ListTransactionsHandler returns a page of the authenticated user's
// transfer history.
func (h *WalletHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(r)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	page, err := parseOptionalPositiveInt(r.URL.Query().Get("page"), 1)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 20)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	direction := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("direction")))
	switch direction {
	case "", domain.DirectionAll, domain.DirectionDebit, domain.DirectionCredit:
	default:
		h.writeError(w, http.StatusBadRequest, "Invalid direction")
		return
	}

	result, err := h.service.GetTransferHistory(r.Context(), userID, domain.TransferListOptions{
		Page:      page,
		Limit:     limit,
		Direction: direction,
		Search:    strings.TrimSpace(r.URL.Query().Get("q")),
	})
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve transactions.")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetTransactionHandler returns a single transfer by its reference, visible
// only to its participants.
func (h *WalletHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(r)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	txID := strings.TrimSpace(chi.URLParam(r, "txId"))
	if txID == "" {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	result, err := h.service.GetTransferByTxID(r.Context(), userID, txID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found.")
			return
		}
		log.Printf("level=error component=api endpoint=get_transaction outcome=failed user_id=%s tx_id=%s err=%v", userID, txID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve transaction.")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HealthCheckHandler provides a simple endpoint for liveness probes.
func (h *WalletHandlers) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseOptionalPositiveInt(raw string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid integer value: %q", raw)
	}
	if value == 0 {
		return fallback, nil
	}
	return value, nil
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
