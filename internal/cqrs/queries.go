package cqrs

// ---------- Payment queries ----------

// GetPaymentQuery fetches a single payment, subject to ownership check.
type GetPaymentQuery struct {
	PaymentID string
	UserID    string
}

// ListPaymentsQuery selects a user's payments, newest first.
type ListPaymentsQuery struct {
	UserID      string
	Limit       int
	RelatedType string
	EscrowOnly  bool
}
