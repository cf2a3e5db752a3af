package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/models"
)

// ErrEscrowNotHeld is returned when a release finds no held escrow matching
// the payment and its owner, e.g. because it was already released.
var ErrEscrowNotHeld = errors.New("escrow is not held")

// EscrowWriteRepository mutates escrow_transactions. It operates
// exclusively against the PostgreSQL write store.
type EscrowWriteRepository struct {
	db *sql.DB
}

func NewEscrowWriteRepository(db *sql.DB) *EscrowWriteRepository {
	return &EscrowWriteRepository{db: db}
}

const releaseEscrowQuery = `
	UPDATE escrow_transactions e
	SET status = $5, released_at = $2, updated_at = $2
	FROM payments p
	WHERE e.id = $1
	  AND e.payment_id = p.id
	  AND p.id = $3
	  AND p.user_id = $4
	  AND e.status = $6
`

// Release moves the escrow from held to released in a single conditional
// update. Zero affected rows means the escrow was not in the held state for
// this payment and owner.
func (r *EscrowWriteRepository) Release(ctx context.Context, cmd cqrs.ReleaseEscrowCommand) error {
	res, err := r.db.ExecContext(ctx, releaseEscrowQuery,
		cmd.EscrowID, cmd.ReleasedAt, cmd.PaymentID, cmd.RequestingUserID,
		models.EscrowStatusReleased, models.EscrowStatusHeld,
	)
	if err != nil {
		return fmt.Errorf("failed to release escrow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release escrow: %w", err)
	}
	if n == 0 {
		return ErrEscrowNotHeld
	}
	return nil
}
