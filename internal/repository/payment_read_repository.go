package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/models"
	sharedredis "github.com/eaglebank/payments-service/internal/redis"
)

const paymentViewKeyPrefix = "payment:view:"

var ErrPaymentNotFound = errors.New("payment not found")

// paymentColumns selects a payment with its escrow_transactions join.
const paymentColumns = `
	p.id, p.user_id, p.amount, p.currency, p.status,
	p.description, p.related_type, p.related_id, p.created_at,
	e.id, e.status, e.amount, e.released_at`

const paymentFrom = `
	FROM payments p
	LEFT JOIN escrow_transactions e ON e.payment_id = p.id`

// PaymentReadRepository handles all read operations for payments.
// Single payments are served from Redis first, falling back to PostgreSQL.
// Lists always go to PostgreSQL.
type PaymentReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.PaymentRow]
}

// NewPaymentReadRepository builds the repository. A nil redisClient disables
// the view cache.
func NewPaymentReadRepository(db *sql.DB, redisClient *goredis.Client, ttl time.Duration, logger zerolog.Logger) *PaymentReadRepository {
	r := &PaymentReadRepository{db: db}
	if redisClient != nil {
		r.cache = sharedredis.NewViewCache[models.PaymentRow](redisClient, paymentViewKeyPrefix, ttl, logger)
	}
	return r
}

// BuildListQuery renders the list query for q. Optional filters add
// predicates; the limit is always the last argument.
func BuildListQuery(q cqrs.ListPaymentsQuery) (string, []any) {
	var b strings.Builder
	args := []any{q.UserID}

	b.WriteString("SELECT")
	b.WriteString(paymentColumns)
	b.WriteString(paymentFrom)
	b.WriteString("\n\tWHERE p.user_id = $1")
	if q.RelatedType != "" {
		args = append(args, q.RelatedType)
		fmt.Fprintf(&b, " AND p.related_type = $%d", len(args))
	}
	if q.EscrowOnly {
		b.WriteString(" AND e.id IS NOT NULL")
	}
	args = append(args, q.Limit)
	fmt.Fprintf(&b, "\n\tORDER BY p.created_at DESC\n\tLIMIT $%d", len(args))
	return b.String(), args
}

// ListPayments returns up to q.Limit payments for q.UserID, newest first.
func (r *PaymentReadRepository) ListPayments(ctx context.Context, q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
	query, args := BuildListQuery(q)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]models.PaymentRow, 0, q.Limit)
	for rows.Next() {
		row, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// GetByID returns a payment with its escrow join, trying Redis first. Cached
// views may lag changes made outside this service; mutation paths use
// GetByIDFresh.
func (r *PaymentReadRepository) GetByID(ctx context.Context, id string) (*models.PaymentRow, error) {
	if r.cache != nil {
		if row, ok := r.cache.Get(ctx, id); ok {
			return row, nil
		}
	}
	return r.GetByIDFresh(ctx, id)
}

// GetByIDFresh reads the payment from PostgreSQL and refreshes the cached view.
func (r *PaymentReadRepository) GetByIDFresh(ctx context.Context, id string) (*models.PaymentRow, error) {
	query := "SELECT" + paymentColumns + paymentFrom + "\n\tWHERE p.id = $1"
	row, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	// Warm the cache
	if r.cache != nil {
		r.cache.Set(ctx, id, &row)
	}
	return &row, nil
}

// InvalidatePayment drops the cached view after a write.
func (r *PaymentReadRepository) InvalidatePayment(ctx context.Context, id string) {
	if r.cache != nil {
		r.cache.Delete(ctx, id)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (models.PaymentRow, error) {
	var (
		row                                 models.PaymentRow
		description, relatedType, relatedID sql.NullString
		escrowID, escrowStatus              sql.NullString
		escrowAmount                        sql.NullFloat64
		escrowReleasedAt                    sql.NullTime
	)
	err := s.Scan(
		&row.ID, &row.UserID, &row.Amount, &row.Currency, &row.Status,
		&description, &relatedType, &relatedID, &row.CreatedAt,
		&escrowID, &escrowStatus, &escrowAmount, &escrowReleasedAt,
	)
	if err != nil {
		return row, err
	}
	row.Description = stringPtr(description)
	row.RelatedType = stringPtr(relatedType)
	row.RelatedID = stringPtr(relatedID)
	row.EscrowID = stringPtr(escrowID)
	row.EscrowStatus = stringPtr(escrowStatus)
	if escrowAmount.Valid {
		v := escrowAmount.Float64
		row.EscrowAmount = &v
	}
	if escrowReleasedAt.Valid {
		v := escrowReleasedAt.Time
		row.EscrowReleasedAt = &v
	}
	return row, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
