/**
 * @description
 * This file defines the core domain models for the wallet-service. These
 * structs represent the main entities and data transfer objects (DTOs) used
 * throughout the service's business logic, database interactions, and API
 * layers.
 *
 * @notes
 * - Amounts use the Amount type (int64 paise) to avoid floating-point
 *   inaccuracies with financial data.
 * - JSON field names follow the external wire contract (camelCase), which
 *   mobile clients already depend on.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transfer statuses persisted in the ledger. The confirmation engine only
// ever writes SUCCESS; FAILED and PENDING exist for imported or external
// records.
const (
	TransferStatusSuccess = "SUCCESS"
	TransferStatusFailed  = "FAILED"
	TransferStatusPending = "PENDING"
)

// Directions used by the history list filter.
const (
	DirectionAll    = "all"
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

// Account is a user's balance-holding record plus transaction-PIN security
// state. It maps to the `accounts` table.
type Account struct {
	ID                uuid.UUID  `json:"id"`
	PhoneNumber       string     `json:"phoneNumber"`
	FullName          string     `json:"fullName"`
	Balance           Amount     `json:"balance"`
	PinHash           *string    `json:"-"`
	PinFailedAttempts int        `json:"-"`
	PinLockedUntil    *time.Time `json:"-"`
}

// Snapshot returns the public identity view of the account used in previews
// and receipts.
func (a *Account) Snapshot() PartySnapshot {
	return PartySnapshot{
		ID:          a.ID,
		FullName:    a.FullName,
		PhoneNumber: a.PhoneNumber,
	}
}

// PartySnapshot identifies one side of a transfer without exposing balance
// or security state.
type PartySnapshot struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"fullName"`
	PhoneNumber string    `json:"phoneNumber"`
}

// Transfer is the immutable ledger record of one completed money movement.
// It maps to the `transfers` table and is never updated or deleted by the
// confirmation engine.
type Transfer struct {
	TxID           string    `json:"txId"`
	SenderID       uuid.UUID `json:"senderId"`
	RecipientID    uuid.UUID `json:"recipientId"`
	Amount         Amount    `json:"amount"`
	Remark         string    `json:"remark"`
	Status         string    `json:"status"`
	IdempotencyKey *string   `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Advisory is the non-blocking large-amount warning surfaced alongside
// previews and receipts. Avg30d is the sender's mean successful debit over
// the trailing window, in major units.
type Advisory struct {
	LargeAmount bool    `json:"largeAmount"`
	Avg30d      float64 `json:"avg30d"`
}

// PreviewTransferRequest is the DTO for transfer preview API requests.
type PreviewTransferRequest struct {
	ToPhoneNumber string `json:"toPhoneNumber"`
	Amount        Amount `json:"amount"`
	Remark        string `json:"remark"`
}

// ConfirmTransferRequest is the DTO for transfer confirmation API requests.
// The idempotency key may instead arrive via the Idempotency-Key header,
// which takes precedence over the body field.
type ConfirmTransferRequest struct {
	ToPhoneNumber  string `json:"toPhoneNumber"`
	Amount         Amount `json:"amount"`
	Remark         string `json:"remark"`
	PIN            string `json:"pin"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// TransferPreview is the read-only result of a preview call. No state has
// been touched when one of these is produced.
type TransferPreview struct {
	From    PartySnapshot `json:"from"`
	To      PartySnapshot `json:"to"`
	Amount  Amount        `json:"amount"`
	Remark  string        `json:"remark"`
	Warning Advisory      `json:"warning"`
}

// Receipt is the externally referenceable proof of a settled transfer.
type Receipt struct {
	TxID      string        `json:"txId"`
	Status    string        `json:"status"`
	Amount    Amount        `json:"amount"`
	Remark    string        `json:"remark"`
	From      PartySnapshot `json:"from"`
	To        PartySnapshot `json:"to"`
	CreatedAt time.Time     `json:"createdAt"`
}

// TransferConfirmation is the full confirm response: the receipt plus the
// advisory computed from pre-transfer history.
type TransferConfirmation struct {
	Receipt Receipt  `json:"receipt"`
	Warning Advisory `json:"warning"`
}

// TransferListOptions controls pagination and filtering for the history
// endpoint.
type TransferListOptions struct {
	Page      int
	Limit     int
	Direction string // all | debit | credit, relative to the requesting user
	Search    string // free text over remark and counterparty phone number
}

// TransferListItem is one history row, oriented relative to the requesting
// user.
type TransferListItem struct {
	TxID         string        `json:"txId"`
	Direction    string        `json:"direction"`
	Amount       Amount        `json:"amount"`
	Remark       string        `json:"remark"`
	Status       string        `json:"status"`
	Counterparty PartySnapshot `json:"counterparty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// TransferPage is a paginated slice of a user's transfer history.
type TransferPage struct {
	Items []TransferListItem `json:"items"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}
