package models

import "time"

// Payment statuses.
const (
	PaymentStatusPending         = "pending"
	PaymentStatusCompleted       = "completed"
	PaymentStatusFailed          = "failed"
	PaymentStatusRefundRequested = "refund_requested"
	PaymentStatusRefunded        = "refunded"
)

// Escrow statuses. held -> released is the only modelled transition.
const (
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
)

const RefundStatusRequested = "requested"

type Refund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"paymentId"`
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdTimestamp"`
}
