package command

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/events"
)

type EscrowWriter interface {
	Release(ctx context.Context, cmd cqrs.ReleaseEscrowCommand) error
}

// EscrowCommandService releases held escrow funds.
type EscrowCommandService struct {
	writer    EscrowWriter
	reader    PaymentReader
	publisher EventPublisher
	logger    zerolog.Logger
}

func NewEscrowCommandService(writer EscrowWriter, reader PaymentReader, publisher EventPublisher, logger zerolog.Logger) *EscrowCommandService {
	return &EscrowCommandService{
		writer:    writer,
		reader:    reader,
		publisher: publisher,
		logger:    logger.With().Str("component", "escrow_command").Logger(),
	}
}

// ReleaseEscrow performs the conditional held -> released write. A release
// that loses a race surfaces repository.ErrEscrowNotHeld.
func (s *EscrowCommandService) ReleaseEscrow(ctx context.Context, cmd cqrs.ReleaseEscrowCommand) error {
	if err := s.writer.Release(ctx, cmd); err != nil {
		return err
	}
	s.reader.InvalidatePayment(ctx, cmd.PaymentID)

	if err := s.publisher.Publish(ctx, events.PaymentEventsStream, events.EscrowReleased, events.EscrowReleasedEvent{
		EscrowID:   cmd.EscrowID,
		PaymentID:  cmd.PaymentID,
		UserID:     cmd.RequestingUserID,
		ReleasedAt: cmd.ReleasedAt,
	}); err != nil {
		s.logger.Warn().Err(err).Str("escrow_id", cmd.EscrowID).Msg("publish escrow.released")
	}
	return nil
}
