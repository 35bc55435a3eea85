/**
 * @description
 * This file contains the core business logic for the wallet-service. The
 * `Service` struct orchestrates transfer previews and confirmations,
 * coordinating between the database repository and the message broker.
 *
 * Key features:
 * - Implements the transfer confirmation flow as an ordered series of hard
 *   gates: amount ceiling, PIN verification with progressive lockout,
 *   recipient resolution, idempotent replay detection, daily aggregate
 *   limit, and finally the atomic settlement.
 * - Computes the non-blocking large-amount advisory from the sender's
 *   trailing transfer history.
 * - Publishes events to RabbitMQ for asynchronous processing by other
 *   services.
 *
 * @dependencies
 * - context, errors, log, regexp, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction id generation.
 * - golang.org/x/crypto/bcrypt: For PIN hash comparison.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/payhive/wallet-service/internal/domain"
	"github.com/payhive/wallet-service/internal/store"
	"github.com/payhive/wallet-service/pkg/rabbitmq"
	"golang.org/x/crypto/bcrypt"
)

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10}$`)
	pinPattern   = regexp.MustCompile(`^[0-9]{4}$`)
)

const (
	maxRemarkLength          = 140
	minIdempotencyKeyLength  = 8
	confirmRateLimitScope    = "transfer_confirm"
	confirmRateLimitWindow   = time.Minute
	defaultLargeAmountFactor = 2.0
)

// Limits holds the financial-safety configuration for the transfer engine.
type Limits struct {
	MaxTransferAmount    domain.Amount
	DailyTransferLimit   domain.Amount
	MaxPinAttempts       int
	PinLockoutDuration   time.Duration
	LargeAmountFactor    float64
	AdvisoryWindow       time.Duration
	IdempotencyRetention time.Duration
}

// RateLimiter is the optional distributed limiter applied to confirm calls.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for transfers.
type Service struct {
	repo   store.Repository
	events rabbitmq.Publisher
	limits Limits

	rateLimiter          RateLimiter
	confirmRatePerMinute int

	now func() time.Time
}

// NewService creates a new wallet service instance.
func NewService(repo store.Repository, events rabbitmq.Publisher, limits Limits) *Service {
	if limits.LargeAmountFactor <= 0 {
		limits.LargeAmountFactor = defaultLargeAmountFactor
	}
	if limits.AdvisoryWindow <= 0 {
		limits.AdvisoryWindow = 30 * 24 * time.Hour
	}
	return &Service{
		repo:   repo,
		events: events,
		limits: limits,
		now:    time.Now,
	}
}

// SetRateLimiter attaches a distributed rate limiter to the confirm path.
func (s *Service) SetRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.confirmRatePerMinute = perMinute
}

func validateBase(phoneNumber string, amount domain.Amount, remark string) error {
	if !phonePattern.MatchString(phoneNumber) {
		return ErrInvalidPhoneNumber
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if len(remark) > maxRemarkLength {
		return ErrRemarkTooLong
	}
	return nil
}

// PreviewTransfer validates the recipient and returns snapshots of both
// parties plus the large-amount advisory. It never mutates state and is safe
// to call arbitrarily often.
func (s *Service) PreviewTransfer(ctx context.Context, senderID uuid.UUID, req domain.PreviewTransferRequest) (*domain.TransferPreview, error) {
	if err := validateBase(req.ToPhoneNumber, req.Amount, req.Remark); err != nil {
		return nil, err
	}

	sender, err := s.repo.FindAccountByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, err
	}

	recipient, err := s.repo.FindAccountByPhoneNumber(ctx, req.ToPhoneNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, ErrSelfTransfer
	}

	warning, err := s.advisory(ctx, sender.ID, req.Amount)
	if err != nil {
		return nil, err
	}

	return &domain.TransferPreview{
		From:    sender.Snapshot(),
		To:      recipient.Snapshot(),
		Amount:  req.Amount,
		Remark:  req.Remark,
		Warning: warning,
	}, nil
}

// ConfirmTransfer runs the full confirmation state machine and, on success,
// returns the receipt for the settled transfer. Every gate aborts before any
// balance mutation; only the atomic settlement writes.
func (s *Service) ConfirmTransfer(ctx context.Context, senderID uuid.UUID, req domain.ConfirmTransferRequest) (*domain.TransferConfirmation, error) {
	if err := validateBase(req.ToPhoneNumber, req.Amount, req.Remark); err != nil {
		return nil, err
	}
	if !pinPattern.MatchString(req.PIN) {
		return nil, ErrInvalidPinFormat
	}
	if req.IdempotencyKey != "" && len(req.IdempotencyKey) < minIdempotencyKeyLength {
		return nil, ErrIdempotencyKeyTooShort
	}

	if err := s.consumeConfirmRateLimit(ctx, senderID); err != nil {
		return nil, err
	}

	now := s.now()

	// 1. Resolve sender.
	sender, err := s.repo.FindAccountByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, err
	}

	// 2. Amount ceiling. Checked before PIN verification so a clearly
	// invalid request never consumes a PIN attempt.
	if req.Amount > s.limits.MaxTransferAmount {
		return nil, ErrAmountExceedsMax
	}

	// 3-5. PIN gates.
	if err := s.verifyPin(ctx, sender, req.PIN, now); err != nil {
		return nil, err
	}

	// 6. Resolve recipient and reject self-transfers.
	recipient, err := s.repo.FindAccountByPhoneNumber(ctx, req.ToPhoneNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, ErrSelfTransfer
	}

	// Advisory reflects behavior before this transfer, so compute it from
	// pre-settlement history.
	warning, err := s.advisory(ctx, sender.ID, req.Amount)
	if err != nil {
		return nil, err
	}

	// 7. Idempotent replay detection.
	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindTransferByIdempotencyKey(ctx, sender.ID, req.IdempotencyKey)
		switch {
		case err == nil:
			return s.resolveReplay(existing, sender, recipient, req.Amount, warning)
		case errors.Is(err, store.ErrTransferNotFound):
			// First time this key is seen; fall through.
		default:
			return nil, err
		}
	}

	// 8. Daily aggregate limit.
	spentToday, err := s.repo.SumSuccessfulDebitsForDay(ctx, sender.ID, now)
	if err != nil {
		return nil, err
	}
	if spentToday+req.Amount > s.limits.DailyTransferLimit {
		return nil, ErrDailyLimitExceeded
	}

	// 9. Atomic settlement: conditional debit, credit, and ledger append in
	// one unit of work.
	entry := &domain.Transfer{
		TxID:        uuid.New().String(),
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      req.Amount,
		Remark:      req.Remark,
		Status:      domain.TransferStatusSuccess,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		entry.IdempotencyKey = &key
	}

	settled, err := s.repo.SettleTransfer(ctx, entry)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			// Lost a race against a concurrent submission with the same key.
			// Re-read the winner and treat this call as a replay.
			existing, lookupErr := s.repo.FindTransferByIdempotencyKey(ctx, sender.ID, req.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return s.resolveReplay(existing, sender, recipient, req.Amount, warning)
		}
		return nil, err
	}

	log.Printf("level=info component=app op=confirm_transfer outcome=settled tx_id=%s sender_id=%s recipient_id=%s amount=%d",
		settled.TxID, sender.ID, recipient.ID, int64(settled.Amount))

	s.publishTransferCompleted(ctx, settled)

	// 10. Receipt.
	return &domain.TransferConfirmation{
		Receipt: domain.Receipt{
			TxID:      settled.TxID,
			Status:    settled.Status,
			Amount:    settled.Amount,
			Remark:    settled.Remark,
			From:      sender.Snapshot(),
			To:        recipient.Snapshot(),
			CreatedAt: settled.CreatedAt,
		},
		Warning: warning,
	}, nil
}

// verifyPin enforces gates 3-5 of the confirmation flow: PIN precondition,
// lockout check, and the bcrypt comparison with progressive lockout on
// failure.
func (s *Service) verifyPin(ctx context.Context, sender *domain.Account, pin string, now time.Time) error {
	if sender.PinHash == nil || *sender.PinHash == "" {
		return ErrPinNotSet
	}

	// An active lock rejects the call without consuming an attempt and
	// without looking at the supplied PIN.
	if sender.PinLockedUntil != nil && sender.PinLockedUntil.After(now) {
		return &PinLockedError{RetryAfter: sender.PinLockedUntil.Sub(now)}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*sender.PinHash), []byte(pin)); err != nil {
		updated, recordErr := s.repo.RecordPinFailure(ctx, sender.ID, s.limits.MaxPinAttempts, s.limits.PinLockoutDuration)
		if recordErr != nil {
			return recordErr
		}
		if updated.PinLockedUntil != nil && updated.PinLockedUntil.After(now) {
			return &PinLockedError{RetryAfter: updated.PinLockedUntil.Sub(now)}
		}
		return &InvalidPinError{AttemptsRemaining: s.limits.MaxPinAttempts - updated.PinFailedAttempts}
	}

	if sender.PinFailedAttempts > 0 || sender.PinLockedUntil != nil {
		if err := s.repo.ClearPinState(ctx, sender.ID); err != nil {
			log.Printf("level=warn component=app op=confirm_transfer msg=\"failed to clear pin state\" account_id=%s err=%v", sender.ID, err)
		}
	}
	return nil
}

// resolveReplay handles an idempotency-key hit: an exact match replays the
// stored entry as a receipt, anything else is a conflict.
func (s *Service) resolveReplay(existing *domain.Transfer, sender, recipient *domain.Account, amount domain.Amount, warning domain.Advisory) (*domain.TransferConfirmation, error) {
	if existing.Amount != amount || existing.RecipientID != recipient.ID {
		return nil, ErrIdempotencyKeyReused
	}

	log.Printf("level=info component=app op=confirm_transfer outcome=replayed tx_id=%s sender_id=%s", existing.TxID, sender.ID)

	return &domain.TransferConfirmation{
		Receipt: domain.Receipt{
			TxID:      existing.TxID,
			Status:    existing.Status,
			Amount:    existing.Amount,
			Remark:    existing.Remark,
			From:      sender.Snapshot(),
			To:        recipient.Snapshot(),
			CreatedAt: existing.CreatedAt,
		},
		Warning: warning,
	}, nil
}

// advisory computes the large-amount warning: the amount exceeds the
// configured factor times the sender's mean successful debit over the
// trailing window. A sender with no history never triggers it.
func (s *Service) advisory(ctx context.Context, senderID uuid.UUID, amount domain.Amount) (domain.Advisory, error) {
	avg, err := s.repo.AverageSuccessfulDebit(ctx, senderID, s.now().Add(-s.limits.AdvisoryWindow))
	if err != nil {
		return domain.Advisory{}, err
	}
	return domain.Advisory{
		LargeAmount: avg > 0 && float64(amount) > s.limits.LargeAmountFactor*avg,
		Avg30d:      avg / 100,
	}, nil
}

func (s *Service) consumeConfirmRateLimit(ctx context.Context, senderID uuid.UUID) error {
	if s.rateLimiter == nil || s.confirmRatePerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, confirmRateLimitScope, senderID.String(), s.confirmRatePerMinute, confirmRateLimitWindow)
	if err != nil {
		// The limiter is protective, not load-bearing: degrade open.
		log.Printf("level=warn component=app op=confirm_transfer msg=\"rate limiter unavailable\" err=%v", err)
		return nil
	}
	if count > s.confirmRatePerMinute {
		return &RateLimitedError{RetryAfter: time.Duration(retryAfter) * time.Second}
	}
	return nil
}

func (s *Service) publishTransferCompleted(ctx context.Context, settled *domain.Transfer) {
	if s.events == nil {
		return
	}
	event := rabbitmq.TransferCompletedEvent{
		TxID:        settled.TxID,
		SenderID:    settled.SenderID,
		RecipientID: settled.RecipientID,
		Amount:      int64(settled.Amount),
		Remark:      settled.Remark,
		Timestamp:   settled.CreatedAt,
	}
	if err := s.events.PublishTransferCompleted(ctx, event); err != nil {
		log.Printf("level=warn component=app op=confirm_transfer msg=\"failed to publish transfer event\" tx_id=%s err=%v", settled.TxID, err)
	}
}

// GetTransferHistory returns a page of the user's transfer history.
func (s *Service) GetTransferHistory(ctx context.Context, userID uuid.UUID, opts domain.TransferListOptions) (*domain.TransferPage, error) {
	return s.repo.ListTransfersForUser(ctx, userID, opts)
}

// GetTransferByTxID returns one transfer by its external reference, visible
// only to participants.
func (s *Service) GetTransferByTxID(ctx context.Context, userID uuid.UUID, txID string) (*domain.TransferListItem, error) {
	return s.repo.FindTransferByTxIDForUser(ctx, userID, txID)
}

// PruneIdempotencyKeys clears idempotency keys older than the configured
// retention. Invoked periodically from the process entry point.
func (s *Service) PruneIdempotencyKeys(ctx context.Context) (int64, error) {
	if s.limits.IdempotencyRetention <= 0 {
		return 0, nil
	}
	return s.repo.PruneIdempotencyKeys(ctx, s.now().Add(-s.limits.IdempotencyRetention))
}
