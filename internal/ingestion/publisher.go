package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/sugawarayuuta/sonnet"
)

// ChangeSubjectPrefix is where committed change sets are published:
// pool.ledger.changes.{event_type}.
const ChangeSubjectPrefix = "pool.ledger.changes."

// OutboundPublisher publishes committed change sets to NATS for downstream
// consumers. Delivery is best effort; consumers that fall behind rebuild
// from the entity tables.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	logger    zerolog.Logger
}

// PublishableEvent is one applied event and the entities it wrote.
type PublishableEvent struct {
	Sequence       int64             `json:"sequence"`
	BatchID        string            `json:"batch_id"`
	EventType      string            `json:"event_type"`
	IdempotencyKey string            `json:"idempotency_key"`
	Block          uint64            `json:"block"`
	LogIndex       uint              `json:"log_index"`
	Entities       []PublishedEntity `json:"entities"`
	StateHash      string            `json:"state_hash"`
	Timestamp      time.Time         `json:"timestamp"`
}

// PublishedEntity is the stored form of one written entity.
type PublishedEntity struct {
	Kind string          `json:"kind"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				op.logger.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := sonnet.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = op.js.Publish(ctx, ChangeSubjectPrefix+evt.EventType, data)
	return err
}

// EnsureOutboundStream creates the outbound change stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "POOL_LEDGER_CHANGES",
		Subjects:  []string{ChangeSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
