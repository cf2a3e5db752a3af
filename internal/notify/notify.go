// Package notify delivers user-visible, fire-and-forget messages to the UI.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eaglebank/payments-service/internal/events"
	"github.com/eaglebank/payments-service/internal/metrics"
)

type Kind string

const (
	KindLoading Kind = "loading"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdTimestamp"`
}

// Publisher is the subset of events.Publisher used by StreamNotifier.
type Publisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// StreamNotifier publishes notifications to the notification events stream,
// where the UI picks them up per user.
type StreamNotifier struct {
	publisher Publisher
	logger    zerolog.Logger
}

func NewStreamNotifier(publisher Publisher, logger zerolog.Logger) *StreamNotifier {
	return &StreamNotifier{
		publisher: publisher,
		logger:    logger.With().Str("component", "notifier").Logger(),
	}
}

// Show publishes n and returns its ID. Publish failures are logged only.
func (s *StreamNotifier) Show(ctx context.Context, n Notification) string {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind)).Inc()
	err := s.publisher.Publish(ctx, events.NotificationEventsStream, events.NotificationShown, events.NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Kind:           string(n.Kind),
		Title:          n.Title,
		Description:    n.Description,
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("user_id", n.UserID).
			Str("kind", string(n.Kind)).
			Msg("publish notification")
	}
	return n.ID
}

func (s *StreamNotifier) Dismiss(ctx context.Context, userID, id string) {
	if id == "" {
		return
	}
	err := s.publisher.Publish(ctx, events.NotificationEventsStream, events.NotificationDismissed, events.NotificationEvent{
		NotificationID: id,
		UserID:         userID,
		Kind:           "dismiss",
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Str("notification_id", id).Msg("publish dismissal")
	}
}

// Recorder keeps notifications in memory. It backs tests and local runs
// without Redis.
type Recorder struct {
	mu        sync.Mutex
	shown     []Notification
	dismissed []string
}

func (r *Recorder) Show(_ context.Context, n Notification) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	r.shown = append(r.shown, n)
	return n.ID
}

func (r *Recorder) Dismiss(_ context.Context, _ string, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed = append(r.dismissed, id)
}

func (r *Recorder) Shown() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.shown...)
}

// ShownOfKind returns the recorded notifications of kind k, oldest first.
func (r *Recorder) ShownOfKind(k Kind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.shown {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

func (r *Recorder) Dismissed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dismissed...)
}
