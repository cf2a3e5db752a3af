package command

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/events"
	"github.com/eaglebank/payments-service/internal/models"
	"github.com/eaglebank/payments-service/internal/repository"
	"github.com/eaglebank/payments-service/internal/utils"
)

var ErrForbidden = errors.New("forbidden")

// PaymentReader loads current payments and drops their cached views after a
// write.
type PaymentReader interface {
	GetByIDFresh(ctx context.Context, id string) (*models.PaymentRow, error)
	InvalidatePayment(ctx context.Context, id string)
}

type RefundWriter interface {
	Create(ctx context.Context, refund *models.Refund) error
}

// EventPublisher appends domain events to a stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// RefundCommandService decides refund eligibility and records the refund.
// Eligibility is re-checked here against Postgres; the UI's predicate is only
// a hint.
type RefundCommandService struct {
	reader    PaymentReader
	writer    RefundWriter
	publisher EventPublisher
	window    time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRefundCommandService(
	reader PaymentReader,
	writer RefundWriter,
	publisher EventPublisher,
	window time.Duration,
	logger zerolog.Logger,
) *RefundCommandService {
	return &RefundCommandService{
		reader:    reader,
		writer:    writer,
		publisher: publisher,
		window:    window,
		logger:    logger.With().Str("component", "refund_command").Logger(),
		now:       time.Now,
	}
}

// IssueRefund opens a refund for cmd.PaymentID. It returns false with a nil
// error when the payment is not eligible, and an error when the request could
// not be evaluated or belongs to another user.
func (s *RefundCommandService) IssueRefund(ctx context.Context, cmd cqrs.RequestRefundCommand) (bool, error) {
	row, err := s.reader.GetByIDFresh(ctx, cmd.PaymentID)
	if err != nil {
		return false, err
	}
	if row.UserID != cmd.RequestingUserID {
		return false, ErrForbidden
	}

	tx := models.FormatTransaction(*row)
	now := s.now().UTC()
	if !tx.Refundable(now, s.window) {
		s.logger.Info().Str("payment_id", tx.ID).Str("status", tx.Status).Msg("refund declined: not eligible")
		return false, nil
	}

	refund := &models.Refund{
		ID:        utils.GenerateID(utils.RefundIDPrefix),
		PaymentID: tx.ID,
		UserID:    cmd.RequestingUserID,
		Amount:    tx.Amount,
		Reason:    cmd.Reason,
		Status:    models.RefundStatusRequested,
		CreatedAt: now,
	}
	if err := s.writer.Create(ctx, refund); err != nil {
		if errors.Is(err, repository.ErrPaymentNotRefundable) {
			s.logger.Info().Str("payment_id", tx.ID).Msg("refund declined: payment changed state")
			return false, nil
		}
		return false, err
	}
	s.reader.InvalidatePayment(ctx, tx.ID)

	if err := s.publisher.Publish(ctx, events.PaymentEventsStream, events.RefundRequested, events.RefundRequestedEvent{
		RefundID:  refund.ID,
		PaymentID: refund.PaymentID,
		UserID:    refund.UserID,
		Amount:    refund.Amount,
		Reason:    refund.Reason,
	}); err != nil {
		s.logger.Warn().Err(err).Str("refund_id", refund.ID).Msg("publish refund.requested")
	}
	return true, nil
}
