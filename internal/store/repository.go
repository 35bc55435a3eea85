/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the wallet-service. By defining
 * an interface, we decouple the transfer engine's business logic from the
 * specific database implementation (PostgreSQL), making the code more modular
 * and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For account identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/payhive/wallet-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.Account, error)

	// PIN security state. Both are single atomic field updates, kept apart
	// from any generic account update so the lock/attempt invariants stay
	// auditable.
	RecordPinFailure(ctx context.Context, accountID uuid.UUID, maxAttempts int, lockoutDuration time.Duration) (*domain.Account, error)
	ClearPinState(ctx context.Context, accountID uuid.UUID) error

	// SettleTransfer executes the conditional debit, the credit, and the
	// ledger insert as one all-or-nothing unit. It is the only write path
	// that moves balance.
	SettleTransfer(ctx context.Context, entry *domain.Transfer) (*domain.Transfer, error)

	// Ledger queries
	FindTransferByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.Transfer, error)
	AverageSuccessfulDebit(ctx context.Context, senderID uuid.UUID, since time.Time) (float64, error)
	SumSuccessfulDebitsForDay(ctx context.Context, senderID uuid.UUID, day time.Time) (domain.Amount, error)

	// History read paths, consumed by the HTTP layer.
	ListTransfersForUser(ctx context.Context, userID uuid.UUID, opts domain.TransferListOptions) (*domain.TransferPage, error)
	FindTransferByTxIDForUser(ctx context.Context, userID uuid.UUID, txID string) (*domain.TransferListItem, error)

	// PruneIdempotencyKeys clears keys on entries older than the cutoff so a
	// retention job can reclaim them. Entries themselves are never deleted.
	PruneIdempotencyKeys(ctx context.Context, olderThan time.Time) (int64, error)
}
