package persistence

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"PoolLedger/internal/store"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"
)

// maxRowsPerInsert keeps multi-row statements under the Postgres limit of
// 65535 bind parameters.
const maxRowsPerInsert = 1000

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventLogWriter writes the event log and the entity tables using
// multi-row INSERTs.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Block          uint64
	LogIndex       uint
	Payload        []byte // JSON-encoded event
	Changes        []byte // JSON-encoded change set
	StateHash      []byte
	PrevHash       []byte
	BatchID        uuid.UUID
	Timestamp      time.Time
}

// EntityRow represents a row in ledger.entities.
type EntityRow struct {
	Kind     string
	ID       string
	Data     []byte
	Sequence int64
}

// recordJSON is the stored form of one store.Record.
type recordJSON struct {
	Kind string          `json:"kind"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// NewEventRow builds the event log row for one sealed envelope.
func NewEventRow(env *event.EventEnvelope, batchID uuid.UUID, records []store.Record) (EventRow, error) {
	changes, err := EncodeRecords(records)
	if err != nil {
		return EventRow{}, err
	}
	return EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Block:          env.Block,
		LogIndex:       env.LogIndex,
		Payload:        env.Payload,
		Changes:        changes,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		BatchID:        batchID,
		Timestamp:      env.Timestamp,
	}, nil
}

// NewEntityRows builds the entity upserts for one change set.
func NewEntityRows(sequence int64, records []store.Record) []EntityRow {
	rows := make([]EntityRow, len(records))
	for i, r := range records {
		rows[i] = EntityRow{Kind: string(r.Kind), ID: r.ID, Data: r.Data, Sequence: sequence}
	}
	return rows
}

// Envelope rebuilds the sealed envelope and change set from a logged row.
func (r EventRow) Envelope() (*event.EventEnvelope, []store.Record, error) {
	records, err := DecodeRecords(r.Changes)
	if err != nil {
		return nil, nil, fmt.Errorf("sequence %d: %w", r.Sequence, err)
	}
	env := &event.EventEnvelope{
		Sequence:       r.Sequence,
		IdempotencyKey: r.IdempotencyKey,
		EventType:      event.ParseEventType(r.EventType),
		Block:          r.Block,
		LogIndex:       r.LogIndex,
		Timestamp:      r.Timestamp.UTC(),
		Payload:        r.Payload,
	}
	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, nil, fmt.Errorf("sequence %d: malformed hash column", r.Sequence)
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, records, nil
}

// EncodeRecords serializes a change set for the changes column.
func EncodeRecords(records []store.Record) ([]byte, error) {
	out := make([]recordJSON, len(records))
	for i, r := range records {
		out[i] = recordJSON{Kind: string(r.Kind), ID: r.ID, Data: r.Data}
	}
	data, err := sonnet.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode change set: %w", err)
	}
	return data, nil
}

// DecodeRecords is the inverse of EncodeRecords.
func DecodeRecords(data []byte) ([]store.Record, error) {
	var in []recordJSON
	if err := sonnet.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode change set: %w", err)
	}
	out := make([]store.Record, len(in))
	for i, r := range in {
		out[i] = store.Record{Kind: entity.Kind(r.Kind), ID: r.ID, Data: []byte(r.Data)}
	}
	return out, nil
}

// WriteEventBatch appends events to event_log.events. Rows already present
// are left untouched so a retried batch is harmless.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	const cols = 11
	for start := 0; start < len(events); start += maxRowsPerInsert {
		chunk := events[start:min(start+maxRowsPerInsert, len(events))]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*cols)
		for i, e := range chunk {
			values = append(values, placeholders(i*cols, cols))
			args = append(args,
				e.Sequence, e.EventType, e.IdempotencyKey, int64(e.Block), int64(e.LogIndex),
				string(e.Payload), string(e.Changes), e.StateHash, e.PrevHash, e.BatchID, e.Timestamp,
			)
		}

		query := `INSERT INTO event_log.events
			(sequence, event_type, idempotency_key, block, log_index, payload, changes, state_hash, prev_hash, batch_id, timestamp)
			VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (sequence) DO NOTHING`

		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// UpsertEntities writes the latest form of each entity. Rows must be
// unique per (kind, id); see CoalesceEntities. Older sequences never
// overwrite newer ones.
func (w *EventLogWriter) UpsertEntities(ctx context.Context, ex execer, rows []EntityRow) error {
	const cols = 4
	for start := 0; start < len(rows); start += maxRowsPerInsert {
		chunk := rows[start:min(start+maxRowsPerInsert, len(rows))]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*cols)
		for i, r := range chunk {
			values = append(values, placeholders(i*cols, cols))
			args = append(args, r.Kind, r.ID, string(r.Data), r.Sequence)
		}

		query := `INSERT INTO ledger.entities (kind, id, data, updated_seq)
			VALUES ` + strings.Join(values, ", ") + `
			ON CONFLICT (kind, id) DO UPDATE
			SET data = EXCLUDED.data, updated_seq = EXCLUDED.updated_seq, updated_at = NOW()
			WHERE ledger.entities.updated_seq <= EXCLUDED.updated_seq`

		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// CoalesceEntities keeps the highest-sequence row per (kind, id),
// preserving first-seen order. A single upsert statement cannot touch the
// same row twice.
func CoalesceEntities(rows []EntityRow) []EntityRow {
	type key struct{ kind, id string }
	pos := make(map[key]int, len(rows))
	out := make([]EntityRow, 0, len(rows))
	for _, r := range rows {
		k := key{r.Kind, r.ID}
		if i, ok := pos[k]; ok {
			if r.Sequence >= out[i].Sequence {
				out[i] = r
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}

func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for j := 1; j <= n; j++ {
		if j > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+j)
	}
	b.WriteByte(')')
	return b.String()
}
