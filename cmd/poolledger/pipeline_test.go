package main

import (
	"PoolLedger/internal/core"
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"PoolLedger/internal/ingestion"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/pool"
	"PoolLedger/internal/store"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func sampleOutput(t *testing.T) core.CoreOutput {
	t.Helper()
	user := &entity.User{ID: "0x00000000000000000000000000000000000000aa", Address: common.HexToAddress("0xaa")}
	records, err := store.EncodeAll([]entity.Entity{user})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return core.CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       7,
			IdempotencyKey: "0x01-3",
			EventType:      event.EventTypeSwap,
			Block:          100,
			LogIndex:       3,
			Timestamp:      time.Unix(1_700_000_000, 0).UTC(),
			Payload:        []byte(`{}`),
			StateHash:      common.HexToHash("0xbeef"),
			PrevHash:       common.HexToHash("0xcafe"),
		},
		BatchID: uuid.New(),
		Records: records,
	}
}

func TestAckFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ackAction
	}{
		{"applied", nil, ack},
		{"out of order", fmt.Errorf("wrapped: %w", core.ErrOutOfOrder), term},
		{"inconsistent", fmt.Errorf("apply Swap: %w", pool.ErrInconsistent), term},
		{"transient", errors.New("seal failed"), nak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ackFor(tt.err); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestToPersistence(t *testing.T) {
	out := sampleOutput(t)

	row, err := toPersistence(out)
	if err != nil {
		t.Fatalf("toPersistence: %v", err)
	}
	if row.EventRow.Sequence != 7 || row.EventRow.EventType != "Swap" {
		t.Errorf("event row: got seq=%d type=%s", row.EventRow.Sequence, row.EventRow.EventType)
	}
	if len(row.EntityRows) != 1 || row.EntityRows[0].Sequence != 7 {
		t.Fatalf("entity rows: got %+v", row.EntityRows)
	}

	env, records, err := row.EventRow.Envelope()
	if err != nil {
		t.Fatalf("Envelope: %v", err)
	}
	if env.StateHash != out.Envelope.StateHash || env.PrevHash != out.Envelope.PrevHash {
		t.Error("hashes did not survive the event row")
	}
	if len(records) != 1 || records[0].ID != out.Records[0].ID {
		t.Errorf("records: got %+v", records)
	}
}

func TestToPublishable(t *testing.T) {
	out := sampleOutput(t)

	pub := toPublishable(out)
	if pub.Sequence != 7 || pub.EventType != "Swap" || pub.LogIndex != 3 {
		t.Errorf("got %+v", pub)
	}
	if pub.BatchID != out.BatchID.String() {
		t.Errorf("batch id: got %s", pub.BatchID)
	}
	if pub.StateHash != common.HexToHash("0xbeef").Hex() {
		t.Errorf("state hash: got %s", pub.StateHash)
	}
	if len(pub.Entities) != 1 || pub.Entities[0].Kind != string(entity.KindUser) {
		t.Errorf("entities: got %+v", pub.Entities)
	}
}

func TestBridgePublishOutputs_DropsWhenFull(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	in := make(chan core.CoreOutput, 3)
	out := make(chan ingestion.PublishableEvent, 1)

	for i := 0; i < 3; i++ {
		in <- sampleOutput(t)
	}
	close(in)
	bridgePublishOutputs(in, out, metrics)

	if got := testutil.ToFloat64(metrics.PublishDrops); got != 2 {
		t.Errorf("drops: got %v, want 2", got)
	}
	if _, ok := <-out; !ok {
		t.Fatal("expected one published event")
	}
	if _, ok := <-out; ok {
		t.Error("output channel should be closed")
	}
}

func TestCheckpointConversion_RoundTrip(t *testing.T) {
	user := &entity.User{ID: "0x00000000000000000000000000000000000000aa", Address: common.HexToAddress("0xaa")}
	st := &core.CheckpointState{
		Sequence:        41,
		StateHash:       common.HexToHash("0x1234"),
		Position:        event.Meta{Block: 900, LogIndex: 12},
		HasPosition:     true,
		Entities:        []entity.Entity{user},
		IdempotencyKeys: []string{"Swap:0x01-3"},
	}

	cp, err := checkpointData(st, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("checkpointData: %v", err)
	}
	got, err := checkpointState(cp)
	if err != nil {
		t.Fatalf("checkpointState: %v", err)
	}

	if got.Sequence != 41 || got.StateHash != st.StateHash || !got.HasPosition {
		t.Errorf("header: got %+v", got)
	}
	if got.Position.Block != 900 || got.Position.LogIndex != 12 {
		t.Errorf("position: got %+v", got.Position)
	}
	if len(got.Entities) != 1 || got.Entities[0].EntityID() != user.ID {
		t.Errorf("entities: got %+v", got.Entities)
	}
	if len(got.IdempotencyKeys) != 1 {
		t.Errorf("keys: got %v", got.IdempotencyKeys)
	}
}
