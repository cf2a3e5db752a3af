package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	claimMinIdle  time.Duration
	logger        zerolog.Logger
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	// ClaimMinIdle is how long a delivered message may stay unacknowledged
	// before the subscriber claims it for another attempt.
	ClaimMinIdle time.Duration
}

func NewSubscriber(client *redis.Client, config SubscriberConfig, logger zerolog.Logger) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.ClaimMinIdle == 0 {
		config.ClaimMinIdle = 30 * time.Second
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		claimMinIdle:  config.ClaimMinIdle,
		logger: logger.With().
			Str("component", "subscriber").
			Str("stream", config.Stream).
			Str("group", config.Group).
			Logger(),
	}
}

// Start consumes the stream until ctx is cancelled. Messages whose handler
// fails stay pending; once idle for ClaimMinIdle they are claimed back with
// XAUTOCLAIM and handled again.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.logger.Info().Str("consumer", s.consumer).Msg("subscriber started")

	var lastClaim time.Time
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("subscriber stopping")
			return ctx.Err()
		default:
			if time.Since(lastClaim) >= s.claimMinIdle {
				if err := s.claimPending(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error().Err(err).Msg("claim pending messages")
				}
				lastClaim = time.Now()
			}
			if err := s.readMessages(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.Error().Err(err).Msg("read messages")
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.handleMessages(ctx, stream.Messages)
	}
	return nil
}

// claimPending takes over entries that have been pending longer than
// claimMinIdle, walking the pending list once.
func (s *Subscriber) claimPending(ctx context.Context) error {
	start := "0-0"
	for {
		messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.claimMinIdle,
			Start:    start,
			Count:    s.batchSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to claim pending messages: %w", err)
		}
		if len(messages) > 0 {
			s.logger.Info().Int("count", len(messages)).Msg("claimed pending messages")
			s.handleMessages(ctx, messages)
		}
		if next == "" || next == "0-0" {
			return nil
		}
		start = next
	}
}

func (s *Subscriber) handleMessages(ctx context.Context, messages []redis.XMessage) {
	for _, message := range messages {
		if err := s.processMessage(ctx, message); err != nil {
			s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("process message")
			continue
		}

		if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
			s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("ack message")
		}
	}
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	event, err := parseMessage(message)
	if err != nil {
		return err
	}
	return s.handler(ctx, event)
}

func parseMessage(message redis.XMessage) (Event, error) {
	var event Event
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return event, fmt.Errorf("invalid message format")
	}
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
