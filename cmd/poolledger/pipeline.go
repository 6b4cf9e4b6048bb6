package main

import (
	"PoolLedger/internal/core"
	"PoolLedger/internal/event"
	"PoolLedger/internal/ingestion"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/persistence"
	"PoolLedger/internal/pool"
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

// toPersistence converts an engine output into event log and entity rows.
func toPersistence(out core.CoreOutput) (persistence.CoreOutput, error) {
	row, err := persistence.NewEventRow(out.Envelope, out.BatchID, out.Records)
	if err != nil {
		return persistence.CoreOutput{}, err
	}
	return persistence.CoreOutput{
		EventRow:   row,
		EntityRows: persistence.NewEntityRows(out.Envelope.Sequence, out.Records),
	}, nil
}

// toPublishable converts an engine output into the outbound change message.
func toPublishable(out core.CoreOutput) ingestion.PublishableEvent {
	env := out.Envelope
	entities := make([]ingestion.PublishedEntity, len(out.Records))
	for i, r := range out.Records {
		entities[i] = ingestion.PublishedEntity{Kind: string(r.Kind), ID: r.ID, Data: json.RawMessage(r.Data)}
	}
	return ingestion.PublishableEvent{
		Sequence:       env.Sequence,
		BatchID:        out.BatchID.String(),
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Block:          env.Block,
		LogIndex:       env.LogIndex,
		Entities:       entities,
		StateHash:      hexutil.Encode(env.StateHash[:]),
		Timestamp:      env.Timestamp,
	}
}

// bridgePersistOutputs forwards engine outputs to the persistence worker
// with a blocking send and closes out when in is closed.
func bridgePersistOutputs(in <-chan core.CoreOutput, out chan<- persistence.CoreOutput, logger zerolog.Logger) {
	defer close(out)
	for o := range in {
		row, err := toPersistence(o)
		if err != nil {
			// Records were encoded by the engine, so this only fails on a
			// corrupted output. Recovery stops at the resulting gap.
			logger.Error().Err(err).Int64("sequence", o.Envelope.Sequence).Msg("output not persistable")
			continue
		}
		out <- row
	}
}

// bridgePublishOutputs forwards engine outputs to the publisher and drops
// them when it falls behind.
func bridgePublishOutputs(in <-chan core.CoreOutput, out chan<- ingestion.PublishableEvent, metrics *observability.Metrics) {
	defer close(out)
	for o := range in {
		select {
		case out <- toPublishable(o):
		default:
			if metrics != nil {
				metrics.PublishDrops.Inc()
			}
		}
	}
}

// ackAction is what to tell the broker once an event has been handled.
type ackAction int

const (
	ack ackAction = iota
	nak
	term
)

// ackFor maps a ProcessEvent result to the broker acknowledgement.
// Out-of-order and inconsistent events fail the same way on every
// delivery, so they are terminated instead of redelivered.
func ackFor(err error) ackAction {
	switch {
	case err == nil:
		return ack
	case errors.Is(err, core.ErrOutOfOrder), errors.Is(err, pool.ErrInconsistent):
		return term
	default:
		return nak
	}
}

// runIngestionLoop parses NATS messages and feeds them to the engine one
// at a time, acknowledging each only after the engine has handled it.
func runIngestionLoop(ctx context.Context, engine *core.Engine, rawChan <-chan ingestion.RawEvent, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-rawChan:
			if ctx.Err() != nil {
				// Contract reads fail once ctx is done, so leave the event
				// for the next run.
				raw.NakFunc()
				return
			}
			eventType := raw.EventType()
			evt, err := ingestion.ParseRawEvent(raw, eventType)
			if err != nil {
				logger.Error().Err(err).Str("subject", raw.Subject).Msg("malformed event terminated")
				raw.TermFunc()
				continue
			}

			err = engine.ProcessEvent(ctx, evt)
			switch ackFor(err) {
			case ack:
				raw.AckFunc()
			case term:
				logger.Error().Err(err).Str("event_type", eventType).Msg("event terminated")
				raw.TermFunc()
			case nak:
				logger.Warn().Err(err).Str("event_type", eventType).Msg("event will be redelivered")
				raw.NakFunc()
			}
		}
	}
}

// runAdminLoop applies operator-injected events.
func runAdminLoop(ctx context.Context, engine *core.Engine, eventChan <-chan event.Event, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-eventChan:
			if err := engine.ProcessEvent(ctx, evt); err != nil {
				logger.Error().Err(err).
					Str("event_type", evt.EventType().String()).
					Str("idempotency_key", evt.IdempotencyKey()).
					Msg("admin event rejected")
			}
		}
	}
}
