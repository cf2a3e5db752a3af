package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eaglebank/payments-service/internal/models"
)

// ErrPaymentNotRefundable is returned when the payment left the completed
// state before the refund could be recorded.
var ErrPaymentNotRefundable = errors.New("payment is not refundable")

// RefundWriteRepository records refund requests.
type RefundWriteRepository struct {
	db *sql.DB
}

func NewRefundWriteRepository(db *sql.DB) *RefundWriteRepository {
	return &RefundWriteRepository{db: db}
}

// Create inserts the refund and flags the payment as refund_requested in one
// database transaction.
func (r *RefundWriteRepository) Create(ctx context.Context, refund *models.Refund) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin refund: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2
		WHERE id = $1 AND user_id = $3 AND status = $4
	`, refund.PaymentID, models.PaymentStatusRefundRequested, refund.UserID, models.PaymentStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to flag payment for refund: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to flag payment for refund: %w", err)
	}
	if n == 0 {
		err = ErrPaymentNotRefundable
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refunds (id, payment_id, user_id, amount, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, refund.ID, refund.PaymentID, refund.UserID, refund.Amount,
		nullString(refund.Reason), refund.Status, refund.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit refund: %w", err)
	}
	return nil
}
