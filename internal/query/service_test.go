package query_test

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/persistence"
	"PoolLedger/internal/query"
	"PoolLedger/internal/store"
	"PoolLedger/internal/testutil"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const poolIDHex = "0x32296969ef14eb0c6d29669c550d4a0449130230000200000000000000000080"

var (
	vault  = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")
	tokenA = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	tokenB = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func TestParsePoolID(t *testing.T) {
	id, err := query.ParsePoolID("0x32296969EF14EB0C6D29669C550D4A0449130230000200000000000000000080")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != poolIDHex {
		t.Errorf("pool id should be normalized, got %s", id)
	}

	for _, bad := range []string{"", "0x1234", "32296969ef14eb0c6d29669c550d4a0449130230000200000000000000000080", "0xzz"} {
		if _, err := query.ParsePoolID(bad); !errors.Is(err, query.ErrInvalidArgument) {
			t.Errorf("%q: expected ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := query.ParseAddress(tokenA.Hex()); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
	if _, err := query.ParseAddress("0x123"); !errors.Is(err, query.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestQueryService_PoolAndIntegrity(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pool := &entity.Pool{
		ID:          poolIDHex,
		PoolType:    entity.PoolTypeWeighted,
		TokensList:  []common.Address{tokenA, tokenB},
		TotalShares: decimal.RequireFromString("100"),
	}
	ptA := &entity.PoolToken{
		ID: entity.PoolTokenID(poolIDHex, tokenA), PoolID: poolIDHex, Token: tokenA, Index: 0,
		Balance: decimal.RequireFromString("10"), CashBalance: decimal.RequireFromString("10"),
	}
	ptB := &entity.PoolToken{
		ID: entity.PoolTokenID(poolIDHex, tokenB), PoolID: poolIDHex, Token: tokenB, Index: 1,
		Balance: decimal.RequireFromString("7"), CashBalance: decimal.RequireFromString("5"),
	}
	vaultShare := &entity.PoolShare{
		ID: entity.PoolShareID(poolIDHex, vault), PoolID: poolIDHex, User: vault,
		Balance: decimal.RequireFromString("-3"),
	}
	aliceShare := &entity.PoolShare{
		ID: entity.PoolShareID(poolIDHex, alice), PoolID: poolIDHex, User: alice,
		Balance: decimal.RequireFromString("-1"),
	}

	records, err := store.EncodeAll([]entity.Entity{pool, ptB, ptA, vaultShare, aliceShare})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := persistence.NewEventLogWriter(db).UpsertEntities(ctx, db, persistence.NewEntityRows(0, records)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	svc := query.NewQueryService(db, vault)

	resp, err := svc.GetPool(ctx, poolIDHex)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if len(resp.Tokens) != 2 || resp.Tokens[0].Token != tokenA {
		t.Errorf("tokens should be in token-list order: %+v", resp.Tokens)
	}
	if !resp.Pool.TotalShares.Equal(decimal.RequireFromString("100")) {
		t.Errorf("total shares: got %s", resp.Pool.TotalShares)
	}

	if _, err := svc.GetPool(ctx, "0x"+common.Bytes2Hex(make([]byte, 32))); !errors.Is(err, query.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	report, err := svc.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.IsHealthy {
		t.Error("report should be unhealthy")
	}
	if len(report.UnbalancedTokens) != 1 || report.UnbalancedTokens[0] != ptB.ID {
		t.Errorf("unbalanced tokens: %v", report.UnbalancedTokens)
	}
	if len(report.NegativeShares) != 1 || report.NegativeShares[0] != aliceShare.ID {
		t.Errorf("negative shares (vault exempt): %v", report.NegativeShares)
	}
}
