package models

import "time"

// FormatTransaction turns a raw payments row into the Transaction view. The
// escrow sub-record is present only when the join produced an escrow id.
func FormatTransaction(row PaymentRow) Transaction {
	tx := Transaction{
		ID:          row.ID,
		UserID:      row.UserID,
		Amount:      row.Amount,
		Currency:    row.Currency,
		Status:      row.Status,
		Description: deref(row.Description),
		RelatedType: deref(row.RelatedType),
		RelatedID:   deref(row.RelatedID),
		CreatedAt:   row.CreatedAt,
	}
	if row.EscrowID != nil && *row.EscrowID != "" {
		escrow := &EscrowRecord{
			ID:     *row.EscrowID,
			Status: deref(row.EscrowStatus),
		}
		if row.EscrowAmount != nil {
			escrow.Amount = *row.EscrowAmount
		}
		if row.EscrowReleasedAt != nil {
			at := *row.EscrowReleasedAt
			escrow.ReleasedAt = &at
		}
		tx.Escrow = escrow
	}
	return tx
}

// Refundable reports whether a refund may be requested for t at now: the
// payment completed within window and its escrow, if any, is not released.
func (t Transaction) Refundable(now time.Time, window time.Duration) bool {
	if t.Status != PaymentStatusCompleted {
		return false
	}
	if t.Escrow != nil && t.Escrow.Status == EscrowStatusReleased {
		return false
	}
	return !t.CreatedAt.After(now) && now.Sub(t.CreatedAt) <= window
}

// ReleasableBy reports whether userID may release the escrow on t. Only the
// paying user can release, and only while funds are held.
func (t Transaction) ReleasableBy(userID string) bool {
	return userID != "" &&
		t.UserID == userID &&
		t.Escrow != nil &&
		t.Escrow.Status == EscrowStatusHeld
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
