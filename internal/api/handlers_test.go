package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/payhive/wallet-service/internal/app"
	"github.com/payhive/wallet-service/internal/domain"
	"github.com/payhive/wallet-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type handlerRepoStub struct {
	store.Repository

	sender    *domain.Account
	recipient *domain.Account

	requestedIdempotencyKey string
	existingByKey           *domain.Transfer
	settleErr               error
	recordFailureResult     *domain.Account
}

func (s *handlerRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	if s.sender != nil && s.sender.ID == accountID {
		return s.sender, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *handlerRepoStub) FindAccountByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.Account, error) {
	if s.recipient != nil && s.recipient.PhoneNumber == phoneNumber {
		return s.recipient, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *handlerRepoStub) RecordPinFailure(ctx context.Context, accountID uuid.UUID, maxAttempts int, lockoutDuration time.Duration) (*domain.Account, error) {
	return s.recordFailureResult, nil
}

func (s *handlerRepoStub) ClearPinState(ctx context.Context, accountID uuid.UUID) error {
	return nil
}

func (s *handlerRepoStub) SettleTransfer(ctx context.Context, entry *domain.Transfer) (*domain.Transfer, error) {
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	settled := *entry
	settled.CreatedAt = time.Now()
	return &settled, nil
}

func (s *handlerRepoStub) FindTransferByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.Transfer, error) {
	s.requestedIdempotencyKey = key
	if s.existingByKey != nil {
		return s.existingByKey, nil
	}
	return nil, store.ErrTransferNotFound
}

func (s *handlerRepoStub) AverageSuccessfulDebit(ctx context.Context, senderID uuid.UUID, since time.Time) (float64, error) {
	return 0, nil
}

func (s *handlerRepoStub) SumSuccessfulDebitsForDay(ctx context.Context, senderID uuid.UUID, day time.Time) (domain.Amount, error) {
	return 0, nil
}

func (s *handlerRepoStub) ListTransfersForUser(ctx context.Context, userID uuid.UUID, opts domain.TransferListOptions) (*domain.TransferPage, error) {
	return &domain.TransferPage{Items: []domain.TransferListItem{}, Page: opts.Page, Limit: opts.Limit}, nil
}

func newHandlerFixture(t *testing.T) (*handlerRepoStub, *WalletHandlers, uuid.UUID) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}
	hashStr := string(hash)

	repo := &handlerRepoStub{
		sender: &domain.Account{
			ID:          uuid.New(),
			PhoneNumber: "9876543210",
			FullName:    "Asha Rao",
			Balance:     50_000_00,
			PinHash:     &hashStr,
		},
		recipient: &domain.Account{
			ID:          uuid.New(),
			PhoneNumber: "9123456780",
			FullName:    "Vikram Shetty",
		},
	}

	service := app.NewService(repo, nil, app.Limits{
		MaxTransferAmount:  100_000_00,
		DailyTransferLimit: 100_000_00,
		MaxPinAttempts:     3,
		PinLockoutDuration: 15 * time.Minute,
	})
	return repo, NewWalletHandlers(service), repo.sender.ID
}

func authedRequest(t *testing.T, userID uuid.UUID, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := context.WithValue(req.Context(), authUserIDKey, userID)
	return req.WithContext(ctx)
}

func TestConfirmTransferHandler_Success(t *testing.T) {
	_, handlers, senderID := newHandlerFixture(t)

	req := authedRequest(t, senderID, http.MethodPost, "/transfer/confirm", map[string]interface{}{
		"toPhoneNumber": "9123456780",
		"amount":        250.50,
		"remark":        "dinner",
		"pin":           "1234",
	})
	rec := httptest.NewRecorder()
	handlers.ConfirmTransferHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Receipt struct {
			TxID   string  `json:"txId"`
			Status string  `json:"status"`
			Amount float64 `json:"amount"`
		} `json:"receipt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Receipt.TxID == "" {
		t.Error("expected a txId on the receipt")
	}
	if resp.Receipt.Status != "SUCCESS" {
		t.Errorf("expected status SUCCESS, got %q", resp.Receipt.Status)
	}
	if resp.Receipt.Amount != 250.50 {
		t.Errorf("expected amount 250.50, got %f", resp.Receipt.Amount)
	}
}

func TestConfirmTransferHandler_IdempotencyKeyHeaderWins(t *testing.T) {
	repo, handlers, senderID := newHandlerFixture(t)

	req := authedRequest(t, senderID, http.MethodPost, "/transfer/confirm", map[string]interface{}{
		"toPhoneNumber":  "9123456780",
		"amount":         100,
		"pin":            "1234",
		"idempotencyKey": "body-key-123",
	})
	req.Header.Set("Idempotency-Key", "header-key-456")
	rec := httptest.NewRecorder()
	handlers.ConfirmTransferHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.requestedIdempotencyKey != "header-key-456" {
		t.Errorf("expected the header key to take precedence, stored lookup used %q", repo.requestedIdempotencyKey)
	}
}

func TestConfirmTransferHandler_WrongPinMapsTo401(t *testing.T) {
	repo, handlers, senderID := newHandlerFixture(t)
	repo.recordFailureResult = &domain.Account{ID: senderID, PinFailedAttempts: 1}

	req := authedRequest(t, senderID, http.MethodPost, "/transfer/confirm", map[string]interface{}{
		"toPhoneNumber": "9123456780",
		"amount":        100,
		"pin":           "9999",
	})
	rec := httptest.NewRecorder()
	handlers.ConfirmTransferHandler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var resp struct {
		AttemptsRemaining int `json:"attemptsRemaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AttemptsRemaining != 2 {
		t.Errorf("expected 2 attempts remaining, got %d", resp.AttemptsRemaining)
	}
}

func TestConfirmTransferHandler_LockedMapsTo423(t *testing.T) {
	repo, handlers, senderID := newHandlerFixture(t)
	lockedUntil := time.Now().Add(10 * time.Minute)
	repo.sender.PinLockedUntil = &lockedUntil

	req := authedRequest(t, senderID, http.MethodPost, "/transfer/confirm", map[string]interface{}{
		"toPhoneNumber": "9123456780",
		"amount":        100,
		"pin":           "1234",
	})
	rec := httptest.NewRecorder()
	handlers.ConfirmTransferHandler(rec, req)

	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header on lockout")
	}
}

func TestConfirmTransferHandler_InsufficientBalanceMapsTo402(t *testing.T) {
	repo, handlers, senderID := newHandlerFixture(t)
	repo.settleErr = store.ErrInsufficientBalance

	req := authedRequest(t, senderID, http.MethodPost, "/transfer/confirm", map[string]interface{}{
		"toPhoneNumber": "9123456780",
		"amount":        100,
		"pin":           "1234",
	})
	rec := httptest.NewRecorder()
	handlers.ConfirmTransferHandler(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
}

func TestConfirmTransferHandler_ValidationMapsTo400(t *testing.T) {
	_, handlers, senderID := newHandlerFixture(t)

	req := authedRequest(t, senderID, http.MethodPost, "/transfer/confirm", map[string]interface{}{
		"toPhoneNumber": "12345",
		"amount":        100,
		"pin":           "1234",
	})
	rec := httptest.NewRecorder()
	handlers.ConfirmTransferHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListTransactionsHandler_InvalidDirection(t *testing.T) {
	_, handlers, senderID := newHandlerFixture(t)

	req := authedRequest(t, senderID, http.MethodGet, "/transactions?direction=sideways", nil)
	rec := httptest.NewRecorder()
	handlers.ListTransactionsHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	var gotUserID uuid.UUID
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID, _ = GetAuthUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := AuthMiddleware(secret)(next)

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !called {
			t.Fatal("expected the protected handler to run")
		}
		if gotUserID != userID {
			t.Errorf("expected user id %s in context, got %s", userID, gotUserID)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("other-secret"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}
