package app

import (
	"errors"
	"fmt"
	"time"
)

// Validation and gate failures surfaced by the transfer engine. Handlers map
// these onto HTTP statuses with errors.Is / errors.As.
var (
	ErrSenderNotFound         = errors.New("sender account not found")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrSelfTransfer           = errors.New("cannot send money to yourself")
	ErrAmountExceedsMax       = errors.New("transfer amount exceeds maximum allowed limit")
	ErrDailyLimitExceeded     = errors.New("daily transfer limit exceeded")
	ErrPinNotSet              = errors.New("transaction PIN not set")
	ErrIdempotencyKeyReused   = errors.New("idempotency key reused with different payload")
	ErrInvalidPhoneNumber     = errors.New("phone number must be exactly 10 digits")
	ErrInvalidPinFormat       = errors.New("PIN must be exactly 4 digits")
	ErrInvalidAmount          = errors.New("amount must be greater than 0")
	ErrRemarkTooLong          = errors.New("remark must be at most 140 characters")
	ErrIdempotencyKeyTooShort = errors.New("idempotency key too short")
)

// PinLockedError reports that PIN verification is suspended. RetryAfter is
// the remaining lockout duration.
type PinLockedError struct {
	RetryAfter time.Duration
}

func (e *PinLockedError) Error() string {
	return fmt.Sprintf("transaction PIN locked, retry after %s", e.RetryAfter.Round(time.Second))
}

// InvalidPinError reports a wrong PIN with the number of attempts left before
// the account locks.
type InvalidPinError struct {
	AttemptsRemaining int
}

func (e *InvalidPinError) Error() string {
	return fmt.Sprintf("invalid transaction PIN, %d attempt(s) remaining", e.AttemptsRemaining)
}

// RateLimitedError reports that the per-sender confirm rate limit was hit.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many transfer attempts, retry after %s", e.RetryAfter.Round(time.Second))
}
