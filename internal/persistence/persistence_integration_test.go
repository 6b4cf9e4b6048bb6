package persistence_test

import (
	"PoolLedger/internal/event"
	"PoolLedger/internal/persistence"
	"PoolLedger/internal/testutil"
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func outputAt(t *testing.T, seq int64, data string) persistence.CoreOutput {
	t.Helper()
	records := sampleRecords()
	records[0].Data = []byte(data)
	env := &event.EventEnvelope{
		Sequence:       seq,
		IdempotencyKey: uuid.NewString(),
		EventType:      event.EventTypeSwap,
		Block:          uint64(100 + seq),
		Timestamp:      time.Unix(1_700_000_000+seq, 0).UTC(),
		Payload:        []byte(`{}`),
		StateHash:      common.BigToHash(common.Big1),
	}
	row, err := persistence.NewEventRow(env, uuid.New(), records)
	if err != nil {
		t.Fatalf("event row: %v", err)
	}
	return persistence.CoreOutput{EventRow: row, EntityRows: persistence.NewEntityRows(seq, records)}
}

func TestPersistenceWorker_WritesEventsAndLatestEntities(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	in := make(chan persistence.CoreOutput, 4)
	worker := persistence.NewPersistenceWorker(db, in, 10, 50*time.Millisecond, nil, zerolog.Nop())

	in <- outputAt(t, 0, `{"id":"0x01","total_shares":"1"}`)
	in <- outputAt(t, 1, `{"id":"0x01","total_shares":"2"}`)
	close(in)

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM event_log.events`).Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}

	var shares string
	var seq int64
	err := db.QueryRow(`SELECT data->>'total_shares', updated_seq FROM ledger.entities WHERE kind = 'pool' AND id = '0x01'`).
		Scan(&shares, &seq)
	if err != nil {
		t.Fatalf("load entity: %v", err)
	}
	if shares != "2" || seq != 1 {
		t.Errorf("entity should hold the latest write, got shares=%s seq=%d", shares, seq)
	}
}

func TestCheckpointManager_LoadsOnlyCoveredCheckpoints(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	cm := persistence.NewCheckpointManager(db)
	writer := persistence.NewEventLogWriter(db)

	o := outputAt(t, 0, `{"id":"0x01"}`)
	if err := writer.WriteEventBatch(ctx, db, []persistence.EventRow{o.EventRow}); err != nil {
		t.Fatalf("write events: %v", err)
	}

	for _, seq := range []int64{0, 5} {
		if _, err := cm.SaveCheckpoint(ctx, &persistence.CheckpointData{
			Sequence:  seq,
			Entities:  sampleRecords(),
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("save checkpoint %d: %v", seq, err)
		}
	}

	cp, err := cm.LoadLatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp == nil || cp.Sequence != 0 {
		t.Fatalf("expected checkpoint 0 (5 is ahead of the log), got %+v", cp)
	}

	events, err := cm.LoadEventsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if _, records, err := events[0].Envelope(); err != nil || len(records) != 2 {
		t.Errorf("logged change set: %v records, err %v", len(records), err)
	}

	latest, err := cm.GetLatestSequence(ctx)
	if err != nil || latest != 0 {
		t.Errorf("latest sequence: got %d, %v", latest, err)
	}
}

func TestPostgresIdempotencyChecker(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	o := outputAt(t, 0, `{"id":"0x01"}`)
	if err := persistence.NewEventLogWriter(db).WriteEventBatch(context.Background(), db, []persistence.EventRow{o.EventRow}); err != nil {
		t.Fatalf("write events: %v", err)
	}

	checker := persistence.NewPostgresIdempotencyChecker(db)
	dup, err := checker.IsDuplicate("Swap", o.EventRow.IdempotencyKey)
	if err != nil || !dup {
		t.Errorf("logged event should be a duplicate: %v, %v", dup, err)
	}
	dup, err = checker.IsDuplicate("Swap", "unseen")
	if err != nil || dup {
		t.Errorf("unseen key should not be a duplicate: %v, %v", dup, err)
	}
}
