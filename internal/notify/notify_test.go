package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaglebank/payments-service/internal/events"
)

type publishCall struct {
	stream    string
	eventType string
	data      any
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	f.calls = append(f.calls, publishCall{stream: stream, eventType: eventType, data: data})
	return f.err
}

func TestStreamNotifier_ShowAssignsIDAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewStreamNotifier(pub, zerolog.Nop())

	id := n.Show(context.Background(), Notification{UserID: "usr-1", Kind: KindError, Title: "t", Description: "d"})

	require.NotEmpty(t, id)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, events.NotificationEventsStream, pub.calls[0].stream)
	assert.Equal(t, events.NotificationShown, pub.calls[0].eventType)
	evt, ok := pub.calls[0].data.(events.NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, id, evt.NotificationID)
	assert.Equal(t, "usr-1", evt.UserID)
	assert.Equal(t, "error", evt.Kind)
}

func TestStreamNotifier_PublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	n := NewStreamNotifier(pub, zerolog.Nop())

	id := n.Show(context.Background(), Notification{ID: "fixed", UserID: "usr-1", Kind: KindSuccess})
	assert.Equal(t, "fixed", id)

	n.Dismiss(context.Background(), "usr-1", id)
	assert.Len(t, pub.calls, 2)
	assert.Equal(t, events.NotificationDismissed, pub.calls[1].eventType)
}

func TestStreamNotifier_DismissEmptyIDIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	NewStreamNotifier(pub, zerolog.Nop()).Dismiss(context.Background(), "usr-1", "")
	assert.Empty(t, pub.calls)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	id := r.Show(context.Background(), Notification{Kind: KindLoading})
	r.Show(context.Background(), Notification{Kind: KindError})
	r.Dismiss(context.Background(), "usr-1", id)

	assert.Len(t, r.Shown(), 2)
	assert.Len(t, r.ShownOfKind(KindError), 1)
	assert.Equal(t, []string{id}, r.Dismissed())
}

func TestCatalog_Lookup(t *testing.T) {
	c := NewCatalog()
	tests := []struct {
		name   string
		locale string
		key    Key
		title  string
	}{
		{"english", "en", KeyFetchFailed, "Could not load transactions"},
		{"regional spanish", "es-MX", KeyRefundFailed, "La solicitud de reembolso falló"},
		{"german", "de", KeyEscrowReleased, "Mittel freigegeben"},
		{"unsupported falls back", "ja", KeyEscrowFailed, "Could not release funds"},
		{"empty locale", "", KeyRefundRequested, "Refund requested"},
		{"garbage locale", "??", KeyRefundPending, "Requesting refund"},
		{"unknown key", "en", Key("nope"), "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.title, c.Lookup(tt.locale, tt.key).Title)
		})
	}
}

func TestCatalog_FailuresSuggestRetry(t *testing.T) {
	c := NewCatalog()
	for _, key := range []Key{KeyFetchFailed, KeyRefundFailed, KeyEscrowFailed} {
		assert.Contains(t, c.Lookup("en", key).Description, "try again")
	}
}
