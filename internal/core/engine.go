package core

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"PoolLedger/internal/ingestion"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/pool"
	"PoolLedger/internal/store"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultLRUCapacity = 1_000_000

// ErrStateHashMismatch is returned when a replayed event does not
// reproduce the state hash recorded in the event log.
var ErrStateHashMismatch = errors.New("state hash mismatch")

// Engine is the single-writer event processor. Events are applied one at a
// time against the entity store; every applied event yields one envelope in
// the hash chain and one coalesced change set.
type Engine struct {
	mu sync.Mutex

	sequence    int64
	store       store.Store
	reducer     *pool.Reducer
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	ordering    *OrderingGuard
	metrics     *observability.Metrics
	logger      zerolog.Logger

	persistChan chan<- CoreOutput
	publishChan chan<- CoreOutput
}

// CoreOutput is everything downstream workers need for one applied event.
type CoreOutput struct {
	Envelope *event.EventEnvelope
	BatchID  uuid.UUID
	Records  []store.Record
}

type EngineConfig struct {
	// StartSequence is the sequence assigned to the next applied event.
	StartSequence int64
	LRUCapacity   int

	// PersistChan receives every output with a blocking send. PublishChan
	// receives outputs best effort and drops when full. Either may be nil.
	PersistChan chan<- CoreOutput
	PublishChan chan<- CoreOutput

	DBChecker DBIdempotencyChecker
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

func NewEngine(st store.Store, reducer *pool.Reducer, cfg EngineConfig) (*Engine, error) {
	capacity := cfg.LRUCapacity
	if capacity <= 0 {
		capacity = DefaultLRUCapacity
	}
	idem, err := NewIdempotencyChecker(capacity, cfg.DBChecker, cfg.Metrics, cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		sequence:    cfg.StartSequence,
		store:       st,
		reducer:     reducer,
		hasher:      NewStateHasher(),
		idempotency: idem,
		ordering:    NewOrderingGuard(),
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		persistChan: cfg.PersistChan,
		publishChan: cfg.PublishChan,
	}, nil
}

// ProcessEvent is the main processing pipeline. It returns nil for events
// that were applied or deliberately skipped (redelivery, unknown reference,
// ignored signal) and an error for events that must not be acknowledged.
func (e *Engine) ProcessEvent(ctx context.Context, evt event.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()
	meta := evt.EventMeta()

	// Step 1: redelivery filter (two-tier)
	if e.idempotency.IsDuplicate(eventType, idempotencyKey) {
		e.recordSkip(eventType, "duplicate")
		return nil
	}

	// Step 2: ordering guard
	if err := e.ordering.Check(meta); err != nil {
		if e.metrics != nil {
			e.metrics.OrderingRejected.Inc()
		}
		e.logEvent(e.logger.Error(), evt).Err(err).Msg("event rejected")
		return err
	}

	// Step 3: reduce into a unit of work, post-check
	cs, outcome, err := e.reduce(ctx, evt)
	switch {
	case errors.Is(err, pool.ErrUnknownReference):
		e.logEvent(e.logger.Warn(), evt).Err(err).Msg("event references unknown state, skipped")
		e.recordSkip(eventType, "unknown_reference")
		e.markApplied(eventType, idempotencyKey, meta)
		return nil
	case err != nil:
		e.logEvent(e.logger.Error(), evt).Err(err).Msg("event rejected")
		if e.metrics != nil {
			e.metrics.EventsFailed.WithLabelValues(eventType).Inc()
		}
		return fmt.Errorf("apply %s %s: %w", eventType, idempotencyKey, err)
	}

	if outcome.Ignored && cs.Len() == 0 {
		e.recordSkip(eventType, "ignored")
		e.markApplied(eventType, idempotencyKey, meta)
		return nil
	}

	// Step 4: seal into the hash chain, then commit
	output, err := e.seal(evt, cs)
	if err != nil {
		e.logEvent(e.logger.Error(), evt).Err(err).Msg("event could not be sealed")
		return err
	}
	e.commit(cs, output)
	e.markApplied(eventType, idempotencyKey, meta)

	// Step 5: emit outputs
	e.emit(output)

	if e.metrics != nil {
		e.metrics.EventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.EventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.DerivedEvents.Add(float64(outcome.Derived))
		for _, ent := range cs.Entities {
			e.metrics.EntitiesWritten.WithLabelValues(string(ent.Kind())).Inc()
		}
	}
	return nil
}

// ReplayEvent re-applies a logged change set during recovery. Entries
// already covered by the restored checkpoint are skipped; every other entry
// must chain onto the current tip and reproduce its recorded state hash.
// Metadata is not re-read, so replay gives the state the log recorded even
// if on-chain reads would answer differently today. Nothing is emitted.
func (e *Engine) ReplayEvent(env *event.EventEnvelope, records []store.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if env.Sequence < e.sequence {
		return nil
	}
	if env.Sequence > e.sequence {
		return fmt.Errorf("replay gap: expected sequence %d, got %d", e.sequence, env.Sequence)
	}

	stateHash := e.hasher.Peek(env.Sequence, ChangeSetDigest(records))
	if stateHash != env.StateHash {
		return fmt.Errorf("%w at sequence %d: log %x, replay %x",
			ErrStateHashMismatch, env.Sequence, env.StateHash, stateHash)
	}
	entities, err := store.DecodeAll(records)
	if err != nil {
		return fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
	}

	e.store.Apply(&store.ChangeSet{Entities: entities})
	e.hasher.SetPrevHash(stateHash)
	e.sequence++
	e.markApplied(env.EventType.String(), env.IdempotencyKey, event.Meta{Block: env.Block, LogIndex: env.LogIndex})
	if e.metrics != nil {
		e.metrics.ReplayEventsTotal.Inc()
		e.metrics.Sequence.Set(float64(e.sequence))
	}
	return nil
}

func (e *Engine) reduce(ctx context.Context, evt event.Event) (*store.ChangeSet, pool.Outcome, error) {
	u := store.NewUnitOfWork(e.store)
	outcome, err := e.reducer.Apply(ctx, u, evt)
	if err != nil {
		return nil, outcome, err
	}
	if err := e.reducer.CheckInvariants(u); err != nil {
		return nil, outcome, err
	}
	return u.Commit(), outcome, nil
}

// seal encodes the event and its change set and computes the next state
// hash without advancing the chain.
func (e *Engine) seal(evt event.Event, cs *store.ChangeSet) (CoreOutput, error) {
	payload, err := ingestion.EncodeEvent(evt)
	if err != nil {
		return CoreOutput{}, fmt.Errorf("encode event: %w", err)
	}
	records, err := cs.Records()
	if err != nil {
		return CoreOutput{}, fmt.Errorf("encode change set: %w", err)
	}

	meta := evt.EventMeta()
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.Peek(e.sequence, ChangeSetDigest(records))

	return CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       e.sequence,
			IdempotencyKey: evt.IdempotencyKey(),
			EventType:      evt.EventType(),
			Block:          meta.Block,
			LogIndex:       meta.LogIndex,
			Timestamp:      time.Unix(meta.Timestamp, 0).UTC(),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		},
		BatchID: uuid.New(),
		Records: records,
	}, nil
}

func (e *Engine) commit(cs *store.ChangeSet, output CoreOutput) {
	e.store.Apply(cs)
	e.hasher.SetPrevHash(output.Envelope.StateHash)
	e.sequence++
	if e.metrics != nil {
		e.metrics.Sequence.Set(float64(e.sequence))
	}
}

func (e *Engine) markApplied(eventType, idempotencyKey string, meta event.Meta) {
	e.idempotency.MarkProcessed(eventType, idempotencyKey)
	e.ordering.Advance(meta)
}

// emit sends to the persist channel with a blocking send (backpressure)
// and to the publish channel with a non-blocking send (drop on full).
func (e *Engine) emit(output CoreOutput) {
	if e.persistChan != nil {
		select {
		case e.persistChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- output
		}
	}

	if e.publishChan != nil {
		select {
		case e.publishChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

func (e *Engine) recordSkip(eventType, reason string) {
	if e.metrics != nil {
		e.metrics.EventsSkipped.WithLabelValues(eventType, reason).Inc()
	}
}

func (e *Engine) logEvent(ev *zerolog.Event, evt event.Event) *zerolog.Event {
	meta := evt.EventMeta()
	return ev.
		Str("event_type", evt.EventType().String()).
		Str("pool_id", poolRef(evt)).
		Str("tx", meta.TxHash.Hex()).
		Uint("log_index", meta.LogIndex).
		Uint64("block", meta.Block)
}

// poolRef names the pool an event is about, by id or by address.
func poolRef(evt event.Event) string {
	switch e := evt.(type) {
	case *event.PoolCreated:
		return entity.PoolID(e.PoolID)
	case *event.TokensRegistered:
		return entity.PoolID(e.PoolID)
	case *event.PoolBalanceChanged:
		return entity.PoolID(e.PoolID)
	case *event.PoolBalanceManaged:
		return entity.PoolID(e.PoolID)
	case *event.Swap:
		return entity.PoolID(e.PoolID)
	case *event.GenericSignal:
		return entity.PoolID(e.PoolID)
	case *event.ShareTransfer:
		return entity.AddressID(e.PoolAddress)
	case *event.TokenRateUpdated:
		return entity.AddressID(e.PoolAddress)
	case *event.SwapFeeChanged:
		return entity.AddressID(e.PoolAddress)
	case *event.PausedStateChanged:
		return entity.AddressID(e.PoolAddress)
	default:
		return ""
	}
}

// --- Checkpoint restore & startup ---

// CheckpointState is the full engine state at one sequence.
type CheckpointState struct {
	// Sequence is the last applied sequence, -1 before the first event.
	Sequence        int64
	StateHash       [32]byte
	Position        event.Meta
	HasPosition     bool
	Entities        []entity.Entity
	IdempotencyKeys []string
}

// CreateCheckpoint captures the current state. It waits for the event in
// flight, so the result is always consistent.
func (e *Engine) CreateCheckpoint() *CheckpointState {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.ordering.Position()
	return &CheckpointState{
		Sequence:        e.sequence - 1,
		StateHash:       e.hasher.GetPrevHash(),
		Position:        pos,
		HasPosition:     ok,
		Entities:        e.store.Dump(),
		IdempotencyKeys: e.idempotency.Keys(),
	}
}

// RestoreFromCheckpoint replaces the engine state with cp. Replay
// continues from cp.Sequence+1.
func (e *Engine) RestoreFromCheckpoint(cp *CheckpointState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Restore(cp.Entities)
	e.sequence = cp.Sequence + 1
	e.hasher.SetPrevHash(cp.StateHash)
	if cp.HasPosition {
		e.ordering.Restore(cp.Position)
	}
	e.idempotency.Warm(cp.IdempotencyKeys)
}

// GetSequence returns the sequence the next applied event will get.
func (e *Engine) GetSequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (e *Engine) GetStateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}
