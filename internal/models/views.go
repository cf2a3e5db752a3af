package models

import "time"

// PaymentRow is a raw payments row as returned by the backend, with its
// escrow_transactions join flattened into nullable columns.
type PaymentRow struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	Amount           float64    `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	Description      *string    `json:"description,omitempty"`
	RelatedType      *string    `json:"relatedType,omitempty"`
	RelatedID        *string    `json:"relatedId,omitempty"`
	CreatedAt        time.Time  `json:"createdTimestamp"`
	EscrowID         *string    `json:"escrowId,omitempty"`
	EscrowStatus     *string    `json:"escrowStatus,omitempty"`
	EscrowAmount     *float64   `json:"escrowAmount,omitempty"`
	EscrowReleasedAt *time.Time `json:"escrowReleasedTimestamp,omitempty"`
}

// Transaction is the formatted, read-only view of a payment handed to the UI.
// UserID is kept for ownership checks and eligibility predicates.
type Transaction struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	Status      string        `json:"status"`
	Description string        `json:"description,omitempty"`
	RelatedType string        `json:"relatedType,omitempty"`
	RelatedID   string        `json:"relatedId,omitempty"`
	CreatedAt   time.Time     `json:"createdTimestamp"`
	Escrow      *EscrowRecord `json:"escrow,omitempty"`
}

// EscrowRecord is the escrow sub-record nested in a Transaction.
type EscrowRecord struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Amount     float64    `json:"amount"`
	ReleasedAt *time.Time `json:"releasedTimestamp,omitempty"`
}

// HasEscrow reports whether the payment carries an escrow sub-record.
func (t Transaction) HasEscrow() bool {
	return t.Escrow != nil
}
