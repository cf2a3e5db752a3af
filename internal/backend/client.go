// Package backend adapts the query and command services to the store's
// Backend contract.
package backend

import (
	"context"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/models"
)

type Queries interface {
	ListPayments(ctx context.Context, q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error)
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentRow, error)
}

type EscrowReleaser interface {
	ReleaseEscrow(ctx context.Context, cmd cqrs.ReleaseEscrowCommand) error
}

// Client serves reads from the query side and routes the escrow write to the
// command side.
type Client struct {
	queries Queries
	escrow  EscrowReleaser
}

func NewClient(queries Queries, escrow EscrowReleaser) *Client {
	return &Client{queries: queries, escrow: escrow}
}

func (c *Client) ListPayments(ctx context.Context, q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
	return c.queries.ListPayments(ctx, q)
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*models.PaymentRow, error) {
	return c.queries.GetPayment(ctx, paymentID)
}

func (c *Client) ReleaseEscrow(ctx context.Context, cmd cqrs.ReleaseEscrowCommand) error {
	return c.escrow.ReleaseEscrow(ctx, cmd)
}
