// Package store holds the per-session transaction store behind the payments
// screen: the current list of a user's payments, a loading flag and the last
// error, together with the refund and escrow release actions.
//
// Store operations never return errors to their callers. Failures are logged,
// recorded in the store state and turned into user notifications.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/metrics"
	"github.com/eaglebank/payments-service/internal/models"
	"github.com/eaglebank/payments-service/internal/notify"
)

const (
	DefaultLimit        = 100
	DefaultRefundWindow = 30 * 24 * time.Hour
)

var (
	// ErrNoEscrowData is recorded when an escrow release targets a payment
	// without an escrow sub-record.
	ErrNoEscrowData = errors.New("no escrow data for this transaction")
	// ErrRefundRejected is recorded when the refund service declines without
	// giving a reason.
	ErrRefundRejected = errors.New("refund was not issued")
)

// Backend executes queries and mutations against the payments tables.
type Backend interface {
	ListPayments(ctx context.Context, q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error)
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentRow, error)
	// ReleaseEscrow moves a held escrow to released. It must fail when the
	// escrow is no longer held.
	ReleaseEscrow(ctx context.Context, cmd cqrs.ReleaseEscrowCommand) error
}

// IdentityProvider supplies the authenticated user, if any.
type IdentityProvider interface {
	CurrentUser() (string, bool)
}

// RefundIssuer decides refund eligibility and opens the refund.
type RefundIssuer interface {
	IssueRefund(ctx context.Context, cmd cqrs.RequestRefundCommand) (bool, error)
}

type Notifier interface {
	Show(ctx context.Context, n notify.Notification) string
	Dismiss(ctx context.Context, userID, id string)
}

// StaticIdentity is an IdentityProvider for a fixed user. The empty value
// means no one is signed in.
type StaticIdentity string

func (id StaticIdentity) CurrentUser() (string, bool) {
	return string(id), id != ""
}

// Options configure what a store fetches.
type Options struct {
	Limit        int
	RelatedType  string
	EscrowOnly   bool
	RefundWindow time.Duration
	Locale       string
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.RefundWindow <= 0 {
		o.RefundWindow = DefaultRefundWindow
	}
	return o
}

// State is a point-in-time copy of the store.
type State struct {
	Transactions []models.Transaction
	Loading      bool
	Err          error
}

type TransactionStore struct {
	backend  Backend
	identity IdentityProvider
	refunds  RefundIssuer
	notifier Notifier
	catalog  *notify.Catalog
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	inflight singleflight.Group

	mu           sync.RWMutex
	transactions []models.Transaction
	fetching     int
	err          error
}

func New(
	backend Backend,
	identity IdentityProvider,
	refunds RefundIssuer,
	notifier Notifier,
	catalog *notify.Catalog,
	opts Options,
	logger zerolog.Logger,
) *TransactionStore {
	if catalog == nil {
		catalog = notify.NewCatalog()
	}
	s := &TransactionStore{
		backend:  backend,
		identity: identity,
		refunds:  refunds,
		notifier: notifier,
		catalog:  catalog,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
	userID, _ := identity.CurrentUser()
	s.logger = logger.With().Str("component", "transaction_store").Str("user_id", userID).Logger()
	return s
}

// Open performs the initial fetch once an identity is available.
func (s *TransactionStore) Open(ctx context.Context) {
	if _, ok := s.identity.CurrentUser(); !ok {
		return
	}
	s.FetchTransactions(ctx)
}

func (s *TransactionStore) Options() Options {
	return s.opts
}

func (s *TransactionStore) CurrentUser() (string, bool) {
	return s.identity.CurrentUser()
}

// Snapshot returns a copy of the current state.
func (s *TransactionStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *TransactionStore) snapshotLocked() State {
	return State{
		Transactions: append([]models.Transaction(nil), s.transactions...),
		Loading:      s.fetching > 0,
		Err:          s.err,
	}
}

// Refetch is the manual re-fetch trigger.
func (s *TransactionStore) Refetch(ctx context.Context) State {
	return s.FetchTransactions(ctx)
}

// FetchTransactions loads the newest payments for the current user and
// replaces the list wholesale. On failure the previous list is kept. The
// returned State is taken atomically with this call's update.
func (s *TransactionStore) FetchTransactions(ctx context.Context) State {
	userID, ok := s.identity.CurrentUser()
	if !ok {
		metrics.StoreOperationsTotal.WithLabelValues("fetch", metrics.OutcomeSkipped).Inc()
		return s.Snapshot()
	}

	start := time.Now()
	s.mu.Lock()
	s.fetching++
	s.mu.Unlock()

	rows, err := s.backend.ListPayments(ctx, cqrs.ListPaymentsQuery{
		UserID:      userID,
		Limit:       s.opts.Limit,
		RelatedType: s.opts.RelatedType,
		EscrowOnly:  s.opts.EscrowOnly,
	})
	metrics.StoreOperationLatency.WithLabelValues("fetch").Observe(time.Since(start).Seconds())

	var txs []models.Transaction
	if err == nil {
		txs = s.assemble(userID, rows)
	}

	s.mu.Lock()
	s.fetching--
	if err != nil {
		s.err = err
	} else {
		s.transactions = txs
		s.err = nil
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("fetch", metrics.OutcomeFailure).Inc()
		s.logger.Error().Err(err).Msg("fetch transactions")
		s.notify(ctx, userID, notify.KindError, notify.KeyFetchFailed)
		return state
	}
	metrics.StoreOperationsTotal.WithLabelValues("fetch", metrics.OutcomeSuccess).Inc()
	s.logger.Debug().Int("count", len(txs)).Msg("transactions fetched")
	return state
}

// assemble formats rows into a complete snapshot, dropping anything the
// backend returned outside the query's constraints.
func (s *TransactionStore) assemble(userID string, rows []models.PaymentRow) []models.Transaction {
	txs := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		tx := models.FormatTransaction(row)
		if tx.UserID != userID {
			s.logger.Warn().Str("payment_id", tx.ID).Msg("dropping payment owned by another user")
			continue
		}
		if s.opts.RelatedType != "" && tx.RelatedType != s.opts.RelatedType {
			continue
		}
		if s.opts.EscrowOnly && !tx.HasEscrow() {
			continue
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	if len(txs) > s.opts.Limit {
		txs = txs[:s.opts.Limit]
	}
	return txs
}

// RequestRefund asks the refund service to refund transactionID and re-fetches
// on success. It reports whether the refund was issued.
func (s *TransactionStore) RequestRefund(ctx context.Context, transactionID string) bool {
	return s.RequestRefundWithReason(ctx, transactionID, "")
}

func (s *TransactionStore) RequestRefundWithReason(ctx context.Context, transactionID, reason string) bool {
	userID, ok := s.identity.CurrentUser()
	if !ok {
		metrics.StoreOperationsTotal.WithLabelValues("refund", metrics.OutcomeSkipped).Inc()
		return false
	}
	// The shared call outlives any single caller's request.
	shared := context.WithoutCancel(ctx)
	_, err, coalesced := s.inflight.Do("refund:"+transactionID, func() (any, error) {
		return nil, s.requestRefund(shared, userID, transactionID, reason)
	})
	if coalesced {
		metrics.StoreCoalescedTotal.WithLabelValues("refund").Inc()
	}
	return err == nil
}

func (s *TransactionStore) requestRefund(ctx context.Context, userID, transactionID, reason string) error {
	start := time.Now()
	defer func() {
		metrics.StoreOperationLatency.WithLabelValues("refund").Observe(time.Since(start).Seconds())
	}()

	pendingID := s.notify(ctx, userID, notify.KindLoading, notify.KeyRefundPending)
	issued, err := s.refunds.IssueRefund(ctx, cqrs.RequestRefundCommand{
		PaymentID:        transactionID,
		RequestingUserID: userID,
		Reason:           reason,
	})
	s.notifier.Dismiss(ctx, userID, pendingID)
	if err == nil && !issued {
		err = ErrRefundRejected
	}
	if err != nil {
		s.fail("refund", transactionID, err)
		s.notify(ctx, userID, notify.KindError, notify.KeyRefundFailed)
		return err
	}

	metrics.StoreOperationsTotal.WithLabelValues("refund", metrics.OutcomeSuccess).Inc()
	s.logger.Info().Str("payment_id", transactionID).Msg("refund requested")
	s.notify(ctx, userID, notify.KindSuccess, notify.KeyRefundRequested)
	s.FetchTransactions(ctx)
	return nil
}

// ReleaseEscrow releases the held escrow on transactionID and re-fetches on
// success. It reports whether the escrow was released.
//
// The payment is read first to find its escrow; the write itself is
// conditional on the escrow still being held, so a concurrent release or
// deletion between the two steps makes the write fail instead of
// overwriting.
func (s *TransactionStore) ReleaseEscrow(ctx context.Context, transactionID string) bool {
	userID, ok := s.identity.CurrentUser()
	if !ok {
		metrics.StoreOperationsTotal.WithLabelValues("release", metrics.OutcomeSkipped).Inc()
		return false
	}
	shared := context.WithoutCancel(ctx)
	_, err, coalesced := s.inflight.Do("release:"+transactionID, func() (any, error) {
		return nil, s.releaseEscrow(shared, userID, transactionID)
	})
	if coalesced {
		metrics.StoreCoalescedTotal.WithLabelValues("release").Inc()
	}
	return err == nil
}

func (s *TransactionStore) releaseEscrow(ctx context.Context, userID, transactionID string) error {
	start := time.Now()
	defer func() {
		metrics.StoreOperationLatency.WithLabelValues("release").Observe(time.Since(start).Seconds())
	}()

	err := s.writeRelease(ctx, userID, transactionID)
	if err != nil {
		s.fail("release", transactionID, err)
		s.notify(ctx, userID, notify.KindError, notify.KeyEscrowFailed)
		return err
	}

	metrics.StoreOperationsTotal.WithLabelValues("release", metrics.OutcomeSuccess).Inc()
	s.logger.Info().Str("payment_id", transactionID).Msg("escrow released")
	s.notify(ctx, userID, notify.KindSuccess, notify.KeyEscrowReleased)
	s.FetchTransactions(ctx)
	return nil
}

func (s *TransactionStore) writeRelease(ctx context.Context, userID, transactionID string) error {
	row, err := s.backend.GetPayment(ctx, transactionID)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNoEscrowData
	}
	tx := models.FormatTransaction(*row)
	if tx.Escrow == nil {
		return ErrNoEscrowData
	}
	return s.backend.ReleaseEscrow(ctx, cqrs.ReleaseEscrowCommand{
		EscrowID:         tx.Escrow.ID,
		PaymentID:        tx.ID,
		RequestingUserID: userID,
		ReleasedAt:       s.now().UTC(),
	})
}

// CanRequestRefund reports whether the refund action should be offered for tx.
func (s *TransactionStore) CanRequestRefund(tx models.Transaction) bool {
	return tx.Refundable(s.now(), s.opts.RefundWindow)
}

// CanReleaseEscrow reports whether userID may release the escrow on tx.
func (s *TransactionStore) CanReleaseEscrow(tx models.Transaction, userID string) bool {
	return tx.ReleasableBy(userID)
}

func (s *TransactionStore) fail(op, transactionID string, err error) {
	metrics.StoreOperationsTotal.WithLabelValues(op, metrics.OutcomeFailure).Inc()
	s.logger.Error().Err(err).Str("operation", op).Str("payment_id", transactionID).Msg("store operation failed")
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *TransactionStore) notify(ctx context.Context, userID string, kind notify.Kind, key notify.Key) string {
	msg := s.catalog.Lookup(s.opts.Locale, key)
	return s.notifier.Show(ctx, notify.Notification{
		UserID:      userID,
		Kind:        kind,
		Title:       msg.Title,
		Description: msg.Description,
		CreatedAt:   s.now().UTC(),
	})
}
