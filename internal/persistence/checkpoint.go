package persistence

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/store"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"
)

// CheckpointManager stores full engine checkpoints and reads the event log
// back for recovery.
type CheckpointManager struct {
	db *sql.DB
}

// CheckpointData is the serialized engine state at one sequence.
type CheckpointData struct {
	// Sequence is the last applied sequence, -1 for an empty engine.
	Sequence        int64          `json:"sequence"`
	StateHash       common.Hash    `json:"state_hash"`
	HasPosition     bool           `json:"has_position"`
	Block           uint64         `json:"block"`
	LogIndex        uint           `json:"log_index"`
	Entities        []store.Record `json:"-"`
	IdempotencyKeys []string       `json:"idempotency_keys"`
	CreatedAt       time.Time      `json:"created_at"`
}

type checkpointJSON struct {
	CheckpointData
	Entities []recordJSON `json:"entities"`
}

func NewCheckpointManager(db *sql.DB) *CheckpointManager {
	return &CheckpointManager{db: db}
}

// MarshalCheckpoint encodes a checkpoint for the data column.
func MarshalCheckpoint(cp *CheckpointData) ([]byte, error) {
	wire := checkpointJSON{CheckpointData: *cp, Entities: make([]recordJSON, len(cp.Entities))}
	for i, r := range cp.Entities {
		wire.Entities[i] = recordJSON{Kind: string(r.Kind), ID: r.ID, Data: r.Data}
	}
	return sonnet.Marshal(wire)
}

// UnmarshalCheckpoint is the inverse of MarshalCheckpoint.
func UnmarshalCheckpoint(data []byte) (*CheckpointData, error) {
	var wire checkpointJSON
	if err := sonnet.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	cp := wire.CheckpointData
	cp.Entities = make([]store.Record, len(wire.Entities))
	for i, r := range wire.Entities {
		cp.Entities[i] = store.Record{Kind: entity.Kind(r.Kind), ID: r.ID, Data: []byte(r.Data)}
	}
	return &cp, nil
}

// SaveCheckpoint persists a checkpoint and returns its encoded size.
func (cm *CheckpointManager) SaveCheckpoint(ctx context.Context, cp *CheckpointData) (int, error) {
	data, err := MarshalCheckpoint(cp)
	if err != nil {
		return 0, fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = cm.db.ExecContext(ctx, `
		INSERT INTO ledger.checkpoints
			(checkpoint_id, sequence, state_hash, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence) DO UPDATE SET data = $4, state_hash = $3, size_bytes = $5
	`, uuid.New(), cp.Sequence, cp.StateHash.Bytes(), string(data), len(data), cp.CreatedAt)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatestCheckpoint loads the newest checkpoint the event log fully
// covers. A checkpoint taken while events were still in the persist
// channel is skipped until those events are durable. Returns nil on a
// cold start.
func (cm *CheckpointManager) LoadLatestCheckpoint(ctx context.Context) (*CheckpointData, error) {
	row := cm.db.QueryRowContext(ctx, `
		SELECT data FROM ledger.checkpoints
		WHERE sequence <= (SELECT COALESCE(MAX(sequence), -1) FROM event_log.events)
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := UnmarshalCheckpoint(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// PruneCheckpoints deletes all but the newest keep checkpoints.
func (cm *CheckpointManager) PruneCheckpoints(ctx context.Context, keep int) (int64, error) {
	res, err := cm.db.ExecContext(ctx, `
		DELETE FROM ledger.checkpoints
		WHERE sequence < (
			SELECT MIN(sequence) FROM (
				SELECT sequence FROM ledger.checkpoints ORDER BY sequence DESC LIMIT $1
			) newest
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LoadEventsFrom loads up to limit logged events starting at fromSequence,
// in sequence order.
func (cm *CheckpointManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := cm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, block, log_index, payload,
		       changes, state_hash, prev_hash, batch_id, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var (
			e        EventRow
			block    int64
			logIndex int64
		)
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &block, &logIndex, &e.Payload,
			&e.Changes, &e.StateHash, &e.PrevHash, &e.BatchID, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Block = uint64(block)
		e.LogIndex = uint(logIndex)
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, or -1
// when the log is empty.
func (cm *CheckpointManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := cm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
