package events

import "time"

// Event types
const (
	RefundRequested = "refund.requested"
	EscrowReleased  = "escrow.released"

	NotificationShown     = "notification.shown"
	NotificationDismissed = "notification.dismissed"
)

// Stream names
const (
	PaymentEventsStream      = "payment.events"
	NotificationEventsStream = "notification.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Payment events
type RefundRequestedEvent struct {
	RefundID  string  `json:"refundId"`
	PaymentID string  `json:"paymentId"`
	UserID    string  `json:"userId"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason,omitempty"`
}

type EscrowReleasedEvent struct {
	EscrowID   string    `json:"escrowId"`
	PaymentID  string    `json:"paymentId"`
	UserID     string    `json:"userId"`
	ReleasedAt time.Time `json:"releasedTimestamp"`
}

// Notification events carry user-visible messages to the UI.
type NotificationEvent struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
	Kind           string `json:"kind"`
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
}
