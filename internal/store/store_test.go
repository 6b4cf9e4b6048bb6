package store_test

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/metadata"
	"PoolLedger/internal/store"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const poolID = "0x32296969ef14eb0c6d29669c550d4a0449130230000200000000000000000080"

var (
	alice = common.HexToAddress("0xa11ce")
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func TestUnitOfWork_NothingVisibleBeforeApply(t *testing.T) {
	s := store.NewMemoryStore()
	u := store.NewUnitOfWork(s)

	store.GetOrCreateUser(u, alice)

	if _, ok := s.Get(entity.KindUser, entity.AddressID(alice)); ok {
		t.Fatal("staged entity leaked into the store before commit")
	}

	s.Apply(u.Commit())
	if _, ok := s.Get(entity.KindUser, entity.AddressID(alice)); !ok {
		t.Fatal("committed entity missing")
	}
}

func TestUnitOfWork_CoalescesWrites(t *testing.T) {
	s := store.NewMemoryStore()
	u := store.NewUnitOfWork(s)

	share := store.GetOrCreatePoolShare(u, poolID, alice)
	share.Balance = share.Balance.Add(decimal.NewFromInt(5))
	u.Put(share)

	again := store.GetOrCreatePoolShare(u, poolID, alice)
	if again != share {
		t.Fatal("second access must return the staged pointer")
	}
	again.Balance = again.Balance.Sub(decimal.NewFromInt(2))
	u.Put(again)

	cs := u.Commit()

	// pool share + user, one write each
	if cs.Len() != 2 {
		t.Fatalf("change set size: got %d, want 2", cs.Len())
	}
	if cs.Entities[0].Kind() != entity.KindPoolShare || cs.Entities[1].Kind() != entity.KindUser {
		t.Errorf("change set not ordered by kind: %s, %s", cs.Entities[0].Kind(), cs.Entities[1].Kind())
	}

	s.Apply(cs)
	got, _ := s.Get(entity.KindPoolShare, entity.PoolShareID(poolID, alice))
	if !got.(*entity.PoolShare).Balance.Equal(decimal.NewFromInt(3)) {
		t.Errorf("balance: got %s, want 3", got.(*entity.PoolShare).Balance)
	}
}

func TestUnitOfWork_DroppedUnitLeavesStoreUntouched(t *testing.T) {
	s := store.NewMemoryStore()
	seed := store.NewUnitOfWork(s)
	store.GetOrCreatePoolShare(seed, poolID, alice)
	s.Apply(seed.Commit())

	u := store.NewUnitOfWork(s)
	share, _ := store.LoadPoolShare(u, poolID, alice)
	share.Balance = decimal.NewFromInt(100)
	u.Put(share)
	// no commit

	got, _ := s.Get(entity.KindPoolShare, entity.PoolShareID(poolID, alice))
	if !got.(*entity.PoolShare).Balance.IsZero() {
		t.Error("uncommitted mutation is visible")
	}
}

func TestGetOrCreateToken_UsesMetadataDefaults(t *testing.T) {
	s := store.NewMemoryStore()
	u := store.NewUnitOfWork(s)
	md := metadata.NewStaticProvider()

	token := store.GetOrCreateToken(context.Background(), u, md, usdc)
	if token.Decimals != 18 || token.Symbol != "" {
		t.Errorf("defaults: got decimals=%d symbol=%q", token.Decimals, token.Symbol)
	}

	// existing token is not re-read
	store.GetOrCreateToken(context.Background(), u, md, usdc)
	if md.Calls("TokenInfo") != 1 {
		t.Errorf("metadata reads: got %d, want 1", md.Calls("TokenInfo"))
	}
}

func TestGetOrCreatePoolToken_CopiesDecimals(t *testing.T) {
	s := store.NewMemoryStore()
	u := store.NewUnitOfWork(s)
	md := metadata.NewStaticProvider()
	md.SetToken(usdc, "USDC", "USD Coin", 6)

	token := store.GetOrCreateToken(context.Background(), u, md, usdc)
	pt := store.GetOrCreatePoolToken(u, poolID, token, 1)

	if pt.Decimals != 6 || pt.Index != 1 || !pt.PriceRate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("pool token: %+v", pt)
	}
	if pt.ID != entity.PoolTokenID(poolID, usdc) {
		t.Errorf("id: got %s", pt.ID)
	}
}

func TestMemoryStore_DumpRestore(t *testing.T) {
	s := store.NewMemoryStore()
	u := store.NewUnitOfWork(s)
	store.GetOrCreateProtocol(u)
	store.GetOrCreateUser(u, alice)
	s.Apply(u.Commit())

	records, err := store.EncodeAll(s.Dump())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	entities, err := store.DecodeAll(records)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	restored := store.NewMemoryStore()
	restored.Restore(entities)
	if restored.Count() != 2 {
		t.Errorf("restored count: got %d, want 2", restored.Count())
	}
	if _, ok := restored.Get(entity.KindProtocol, entity.ProtocolID); !ok {
		t.Error("protocol singleton missing after restore")
	}
}
