package main

import (
	"PoolLedger/internal/core"
	"PoolLedger/internal/event"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/persistence"
	"PoolLedger/internal/store"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// recoverEngine restores the newest usable checkpoint and replays the
// event log after it. Any hash mismatch aborts startup.
func recoverEngine(ctx context.Context, engine *core.Engine, mgr *persistence.CheckpointManager, batchSize int, logger zerolog.Logger) error {
	cp, err := mgr.LoadLatestCheckpoint(ctx)
	if err != nil {
		return err
	}
	if cp != nil {
		st, err := checkpointState(cp)
		if err != nil {
			return fmt.Errorf("checkpoint at sequence %d: %w", cp.Sequence, err)
		}
		engine.RestoreFromCheckpoint(st)
		logger.Info().
			Int64("sequence", cp.Sequence).
			Int("entities", len(cp.Entities)).
			Msg("checkpoint restored")
	} else {
		logger.Info().Msg("no checkpoint found, replaying from sequence 0")
	}

	start := time.Now()
	replayed := 0
	for {
		rows, err := mgr.LoadEventsFrom(ctx, engine.GetSequence(), batchSize)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			env, records, err := row.Envelope()
			if err != nil {
				return err
			}
			if err := engine.ReplayEvent(env, records); err != nil {
				return err
			}
		}
		replayed += len(rows)
		if len(rows) < batchSize {
			break
		}
	}

	hash := engine.GetStateHash()
	logger.Info().
		Int("replayed", replayed).
		Int64("next_sequence", engine.GetSequence()).
		Str("state_hash", common.Hash(hash).Hex()).
		Dur("took", time.Since(start)).
		Msg("recovery complete")
	return nil
}

func checkpointState(cp *persistence.CheckpointData) (*core.CheckpointState, error) {
	entities, err := store.DecodeAll(cp.Entities)
	if err != nil {
		return nil, err
	}
	return &core.CheckpointState{
		Sequence:        cp.Sequence,
		StateHash:       cp.StateHash,
		Position:        event.Meta{Block: cp.Block, LogIndex: cp.LogIndex},
		HasPosition:     cp.HasPosition,
		Entities:        entities,
		IdempotencyKeys: cp.IdempotencyKeys,
	}, nil
}

func checkpointData(st *core.CheckpointState, now time.Time) (*persistence.CheckpointData, error) {
	records, err := store.EncodeAll(st.Entities)
	if err != nil {
		return nil, err
	}
	return &persistence.CheckpointData{
		Sequence:        st.Sequence,
		StateHash:       st.StateHash,
		HasPosition:     st.HasPosition,
		Block:           st.Position.Block,
		LogIndex:        st.Position.LogIndex,
		Entities:        records,
		IdempotencyKeys: st.IdempotencyKeys,
		CreatedAt:       now.UTC(),
	}, nil
}

// checkpointer takes engine checkpoints for the scheduler, the admin API
// and shutdown.
type checkpointer struct {
	mu      sync.Mutex
	engine  *core.Engine
	mgr     *persistence.CheckpointManager
	keep    int
	lastSeq int64
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func newCheckpointer(engine *core.Engine, mgr *persistence.CheckpointManager, keep int, metrics *observability.Metrics, logger zerolog.Logger) *checkpointer {
	return &checkpointer{
		engine:  engine,
		mgr:     mgr,
		keep:    keep,
		lastSeq: engine.GetSequence() - 1,
		metrics: metrics,
		logger:  logger,
	}
}

// Take saves a checkpoint of the current engine state and returns its
// sequence. Nothing is written when no event was applied since the last
// one.
func (c *checkpointer) Take(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	st := c.engine.CreateCheckpoint()
	if st.Sequence < 0 || st.Sequence == c.lastSeq {
		return st.Sequence, nil
	}

	cp, err := checkpointData(st, start)
	if err != nil {
		return 0, fmt.Errorf("encode checkpoint: %w", err)
	}
	size, err := c.mgr.SaveCheckpoint(ctx, cp)
	if err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	c.lastSeq = st.Sequence

	if c.keep > 0 {
		if pruned, err := c.mgr.PruneCheckpoints(ctx, c.keep); err != nil {
			c.logger.Warn().Err(err).Msg("prune checkpoints")
		} else if pruned > 0 {
			c.logger.Debug().Int64("pruned", pruned).Msg("old checkpoints pruned")
		}
	}

	if c.metrics != nil {
		c.metrics.CheckpointTaken.Inc()
		c.metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
		c.metrics.CheckpointSize.Set(float64(size))
		c.metrics.CheckpointLastSeq.Set(float64(st.Sequence))
	}
	c.logger.Info().
		Int64("sequence", st.Sequence).
		Int("entities", len(st.Entities)).
		Int("bytes", size).
		Dur("took", time.Since(start)).
		Msg("checkpoint saved")
	return st.Sequence, nil
}
