/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed to interact with the `accounts`
 * and `transfers` tables.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - SettleTransfer is the single correctness-critical write: the debit is a
 *   conditional UPDATE guarded by `balance >= amount` evaluated inside the
 *   database, never a read followed by a write from Go.
 */

package store

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/payhive/wallet-service/internal/domain"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrTransferNotFound        = errors.New("transfer not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

const accountColumns = "id, phone_number, full_name, balance, pin_hash, pin_failed_attempts, pin_locked_until"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	var balance int64
	err := row.Scan(
		&account.ID,
		&account.PhoneNumber,
		&account.FullName,
		&balance,
		&account.PinHash,
		&account.PinFailedAttempts,
		&account.PinLockedUntil,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	account.Balance = domain.Amount(balance)
	return &account, nil
}

// FindAccountByID retrieves an account by its identifier.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE id = $1"
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// FindAccountByPhoneNumber retrieves an account by the owner's phone number.
func (r *PostgresRepository) FindAccountByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE phone_number = $1"
	return scanAccount(r.db.QueryRow(ctx, query, strings.TrimSpace(phoneNumber)))
}

// RecordPinFailure atomically increments the failed-attempt counter and, when
// the counter reaches maxAttempts, resets it to zero and applies the lockout.
// The returned account carries the post-update security state.
//
// An active lock is never cleared here: a failure recorded after a concurrent
// failure has already locked the account (both passed the lockout check
// before either wrote) must not erase the fresh lock. Only an expired lock
// falls back to NULL.
func (r *PostgresRepository) RecordPinFailure(ctx context.Context, accountID uuid.UUID, maxAttempts int, lockoutDuration time.Duration) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET
			pin_failed_attempts = CASE
				WHEN pin_failed_attempts + 1 >= $2 THEN 0
				ELSE pin_failed_attempts + 1
			END,
			pin_locked_until = CASE
				WHEN pin_failed_attempts + 1 >= $2 THEN NOW() + ($3 * INTERVAL '1 second')
				WHEN pin_locked_until > NOW() THEN pin_locked_until
				ELSE NULL
			END
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRow(ctx, query, accountID, maxAttempts, int64(lockoutDuration.Seconds())))
}

// ClearPinState resets the failure counter and lock after a successful PIN
// verification.
func (r *PostgresRepository) ClearPinState(ctx context.Context, accountID uuid.UUID) error {
	query := `UPDATE accounts SET pin_failed_attempts = 0, pin_locked_until = NULL WHERE id = $1`
	result, err := r.db.Exec(ctx, query, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// settlementRowOrder returns the two account ids in the order their rows are
// updated during settlement. Crossing transfers (A to B concurrent with B to
// A) touch the same two rows; a fixed id order keeps Postgres from
// deadlock-aborting one of them.
func settlementRowOrder(senderID, recipientID uuid.UUID) [2]uuid.UUID {
	if bytes.Compare(senderID[:], recipientID[:]) <= 0 {
		return [2]uuid.UUID{senderID, recipientID}
	}
	return [2]uuid.UUID{recipientID, senderID}
}

// SettleTransfer debits the sender, credits the recipient, and appends the
// ledger entry within a single database transaction. If any step fails the
// whole unit rolls back, so no partial state is ever observable.
func (r *PostgresRepository) SettleTransfer(ctx context.Context, entry *domain.Transfer) (*domain.Transfer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, accountID := range settlementRowOrder(entry.SenderID, entry.RecipientID) {
		if accountID == entry.SenderID {
			// Conditional debit: the balance check and the decrement are
			// one statement, so concurrent transfers from the same sender
			// cannot overdraft.
			debit, err := tx.Exec(ctx,
				`UPDATE accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1`,
				int64(entry.Amount), entry.SenderID,
			)
			if err != nil {
				return nil, err
			}
			if debit.RowsAffected() == 0 {
				return nil, ErrInsufficientBalance
			}
			continue
		}

		credit, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $1 WHERE id = $2`,
			int64(entry.Amount), entry.RecipientID,
		)
		if err != nil {
			return nil, err
		}
		if credit.RowsAffected() == 0 {
			return nil, ErrAccountNotFound
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO transfers (tx_id, sender_id, recipient_id, amount, remark, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`,
		entry.TxID,
		entry.SenderID,
		entry.RecipientID,
		int64(entry.Amount),
		entry.Remark,
		entry.Status,
		entry.IdempotencyKey,
	).Scan(&entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "idempotency") {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// FindTransferByIdempotencyKey looks up a prior ledger entry for the
// (sender, key) pair.
func (r *PostgresRepository) FindTransferByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.Transfer, error) {
	var transfer domain.Transfer
	var amount int64
	query := `
		SELECT tx_id, sender_id, recipient_id, amount, remark, status, idempotency_key, created_at
		FROM transfers
		WHERE sender_id = $1 AND idempotency_key = $2
	`
	err := r.db.QueryRow(ctx, query, senderID, key).Scan(
		&transfer.TxID,
		&transfer.SenderID,
		&transfer.RecipientID,
		&amount,
		&transfer.Remark,
		&transfer.Status,
		&transfer.IdempotencyKey,
		&transfer.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	transfer.Amount = domain.Amount(amount)
	return &transfer, nil
}

// AverageSuccessfulDebit returns the mean successful outbound amount (in
// paise) for a sender since the given timestamp. Zero when there is no
// history.
func (r *PostgresRepository) AverageSuccessfulDebit(ctx context.Context, senderID uuid.UUID, since time.Time) (float64, error) {
	var avg float64
	query := `
		SELECT COALESCE(AVG(amount), 0)
		FROM transfers
		WHERE sender_id = $1 AND status = $2 AND created_at >= $3
	`
	if err := r.db.QueryRow(ctx, query, senderID, domain.TransferStatusSuccess, since).Scan(&avg); err != nil {
		return 0, err
	}
	return avg, nil
}

// SumSuccessfulDebitsForDay totals the sender's successful outbound transfers
// within the calendar day containing the given instant (server-local day
// boundaries).
func (r *PostgresRepository) SumSuccessfulDebitsForDay(ctx context.Context, senderID uuid.UUID, day time.Time) (domain.Amount, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var total int64
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transfers
		WHERE sender_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4
	`
	if err := r.db.QueryRow(ctx, query, senderID, domain.TransferStatusSuccess, start, end).Scan(&total); err != nil {
		return 0, err
	}
	return domain.Amount(total), nil
}

const transferListSelect = `
	SELECT t.tx_id,
	       CASE WHEN t.sender_id = $1 THEN 'debit' ELSE 'credit' END AS direction,
	       t.amount, t.remark, t.status, t.created_at,
	       cp.id, cp.full_name, cp.phone_number
	FROM transfers t
	JOIN accounts cp
	  ON cp.id = CASE WHEN t.sender_id = $1 THEN t.recipient_id ELSE t.sender_id END
`

func scanTransferListItem(rows pgx.Row) (*domain.TransferListItem, error) {
	var item domain.TransferListItem
	var amount int64
	err := rows.Scan(
		&item.TxID,
		&item.Direction,
		&amount,
		&item.Remark,
		&item.Status,
		&item.CreatedAt,
		&item.Counterparty.ID,
		&item.Counterparty.FullName,
		&item.Counterparty.PhoneNumber,
	)
	if err != nil {
		return nil, err
	}
	item.Amount = domain.Amount(amount)
	return &item, nil
}

// normalizeListOptions clamps paging values and coerces unknown directions to
// "all" so the SQL placeholders always see well-formed inputs.
func normalizeListOptions(opts domain.TransferListOptions) (page, limit, offset int, direction, search string) {
	limit = opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page = opts.Page
	if page < 1 {
		page = 1
	}
	offset = (page - 1) * limit

	direction = opts.Direction
	if direction != domain.DirectionDebit && direction != domain.DirectionCredit {
		direction = domain.DirectionAll
	}
	search = strings.TrimSpace(opts.Search)
	return page, limit, offset, direction, search
}

// ListTransfersForUser returns a page of the user's transfer history, newest
// first, optionally filtered by direction and a free-text search over remark
// and counterparty phone number.
func (r *PostgresRepository) ListTransfersForUser(ctx context.Context, userID uuid.UUID, opts domain.TransferListOptions) (*domain.TransferPage, error) {
	page, limit, offset, direction, search := normalizeListOptions(opts)

	where := `
		WHERE (t.sender_id = $1 OR t.recipient_id = $1)
		  AND ($2 = 'all'
		       OR ($2 = 'debit' AND t.sender_id = $1)
		       OR ($2 = 'credit' AND t.recipient_id = $1))
		  AND ($3 = '' OR t.remark ILIKE '%' || $3 || '%' OR cp.phone_number ILIKE '%' || $3 || '%')
	`

	items := make([]domain.TransferListItem, 0, limit)
	query := transferListSelect + where + `
		ORDER BY t.created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query, userID, direction, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanTransferListItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var total int64
	countQuery := `
		SELECT COUNT(*)
		FROM transfers t
		JOIN accounts cp
		  ON cp.id = CASE WHEN t.sender_id = $1 THEN t.recipient_id ELSE t.sender_id END
	` + where
	if err := r.db.QueryRow(ctx, countQuery, userID, direction, search).Scan(&total); err != nil {
		return nil, err
	}

	return &domain.TransferPage{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// FindTransferByTxIDForUser retrieves a single transfer by its external
// reference, visible only to the two participants.
func (r *PostgresRepository) FindTransferByTxIDForUser(ctx context.Context, userID uuid.UUID, txID string) (*domain.TransferListItem, error) {
	query := transferListSelect + `
		WHERE t.tx_id = $2 AND (t.sender_id = $1 OR t.recipient_id = $1)
	`
	item, err := scanTransferListItem(r.db.QueryRow(ctx, query, userID, txID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return item, nil
}

// PruneIdempotencyKeys nulls out idempotency keys on ledger entries older
// than the cutoff. The entries themselves stay: the ledger is append-only.
func (r *PostgresRepository) PruneIdempotencyKeys(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE transfers SET idempotency_key = NULL WHERE idempotency_key IS NOT NULL AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
