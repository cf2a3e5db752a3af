package cqrs

import "time"

// RequestRefundCommand asks the refund service to open a refund for a payment.
type RequestRefundCommand struct {
	PaymentID        string
	RequestingUserID string
	Reason           string
}

// ReleaseEscrowCommand transitions an escrow from held to released.
type ReleaseEscrowCommand struct {
	EscrowID         string
	PaymentID        string
	RequestingUserID string
	ReleasedAt       time.Time
}
