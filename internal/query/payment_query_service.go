package query

import (
	"context"
	"errors"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/models"
)

const maxListLimit = 100

// ErrForbidden is returned when a payment exists but belongs to someone else.
var ErrForbidden = errors.New("forbidden")

// PaymentReader is the read side the query service depends on.
type PaymentReader interface {
	ListPayments(ctx context.Context, q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error)
	GetByID(ctx context.Context, id string) (*models.PaymentRow, error)
	GetByIDFresh(ctx context.Context, id string) (*models.PaymentRow, error)
}

// PaymentQueryService serves payment reads with their escrow join.
type PaymentQueryService struct {
	readRepo PaymentReader
}

func NewPaymentQueryService(readRepo PaymentReader) *PaymentQueryService {
	return &PaymentQueryService{readRepo: readRepo}
}

// ListPayments returns at most q.Limit rows for q.UserID, newest first.
// Out of range limits are clamped to 1..100.
func (s *PaymentQueryService) ListPayments(ctx context.Context, q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
	if q.Limit <= 0 || q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	return s.readRepo.ListPayments(ctx, q)
}

// GetPayment reads the current payment from PostgreSQL without an ownership
// check. It backs mutations, which must not act on a cached view.
func (s *PaymentQueryService) GetPayment(ctx context.Context, paymentID string) (*models.PaymentRow, error) {
	return s.readRepo.GetByIDFresh(ctx, paymentID)
}

// GetPaymentForUser serves the display read, which may come from the view
// cache.

func (s *PaymentQueryService) GetPaymentForUser(ctx context.Context, q cqrs.GetPaymentQuery) (*models.PaymentRow, error) {
	row, err := s.readRepo.GetByID(ctx, q.PaymentID)
	if err != nil {
		return nil, err
	}
	if row.UserID != q.UserID {
		return nil, ErrForbidden
	}
	return row, nil
}
