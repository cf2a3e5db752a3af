// Package session keeps one TransactionStore per signed-in user and filter
// combination, so a user's snapshot survives between requests.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"

	"github.com/eaglebank/payments-service/internal/events"
	"github.com/eaglebank/payments-service/internal/metrics"
	"github.com/eaglebank/payments-service/internal/store"
)

// Factory builds a store bound to userID.
type Factory func(userID string, opts store.Options) *store.TransactionStore

// Registry holds live stores in a ristretto cache. Entries expire after ttl
// without a Get.
type Registry struct {
	cache   *ristretto.Cache
	ttl     time.Duration
	factory Factory
	logger  zerolog.Logger

	// Cache keys per user, so Invalidate can clear every filter variant.
	mu       sync.Mutex
	userKeys map[string]map[string]struct{}
}

func NewRegistry(factory Factory, ttl time.Duration, logger zerolog.Logger) (*Registry, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session cache: %w", err)
	}
	return &Registry{
		cache:    cache,
		ttl:      ttl,
		factory:  factory,
		logger:   logger.With().Str("component", "session_registry").Logger(),
		userKeys: make(map[string]map[string]struct{}),
	}, nil
}

func sessionKey(userID string, opts store.Options) string {
	return fmt.Sprintf("%s|%d|%s|%t|%s|%s", userID, opts.Limit, opts.RelatedType, opts.EscrowOnly, opts.RefundWindow, opts.Locale)
}

// Get returns the store for userID and opts, creating and opening it on first
// use. created reports whether this call built the store, in which case it
// has already fetched once.
func (r *Registry) Get(ctx context.Context, userID string, opts store.Options) (st *store.TransactionStore, created bool) {
	key := sessionKey(userID, opts)

	r.mu.Lock()
	if v, ok := r.cache.Get(key); ok {
		st = v.(*store.TransactionStore)
		r.touch(key, st)
		r.mu.Unlock()
		return st, false
	}
	st = r.factory(userID, opts)
	r.touch(key, st)
	keys, ok := r.userKeys[userID]
	if !ok {
		keys = make(map[string]struct{})
		r.userKeys[userID] = keys
	}
	keys[key] = struct{}{}
	r.mu.Unlock()

	metrics.SessionsOpened.Inc()
	r.logger.Debug().Str("user_id", userID).Msg("session opened")
	st.Open(ctx)
	return st, true
}

// touch (re)inserts st, restarting its TTL. Caller holds r.mu.
func (r *Registry) touch(key string, st *store.TransactionStore) {
	r.cache.SetWithTTL(key, st, 1, r.ttl)
	r.cache.Wait()
}

// Invalidate drops every store of userID.
func (r *Registry) Invalidate(userID string) {
	r.mu.Lock()
	keys := r.userKeys[userID]
	delete(r.userKeys, userID)
	for key := range keys {
		r.cache.Del(key)
	}
	r.mu.Unlock()

	if len(keys) > 0 {
		metrics.SessionsInvalidated.Inc()
		r.logger.Debug().Str("user_id", userID).Int("sessions", len(keys)).Msg("sessions invalidated")
	}
}

// HandlePaymentEvent is the payment events subscriber handler. Any payment
// mutation for a user makes that user's cached snapshots stale.
func (r *Registry) HandlePaymentEvent(_ context.Context, event events.Event) error {
	var ref struct {
		UserID string `json:"userId"`
	}
	switch event.Type {
	case events.RefundRequested, events.EscrowReleased:
	default:
		return nil
	}
	if err := events.Decode(event, &ref); err != nil {
		return err
	}
	if ref.UserID == "" {
		return nil
	}
	r.Invalidate(ref.UserID)
	return nil
}

func (r *Registry) Close() {
	r.cache.Close()
}
