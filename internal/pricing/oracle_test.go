package pricing_test

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"PoolLedger/internal/metadata"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/pricing"
	"PoolLedger/internal/store"
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	aggregator = common.HexToAddress("0xa9900")
	eurs       = common.HexToAddress("0xe0e0")
	xau        = common.HexToAddress("0x6060")
	unknown    = common.HexToAddress("0xdead")
)

func newNormalizer(static map[common.Address][]common.Address) *pricing.Normalizer {
	return pricing.NewNormalizer(static, xau, nil, observability.NewTestLogger(io.Discard, "pricing"))
}

func seedTokens(t *testing.T, s *store.MemoryStore, tokens ...common.Address) {
	t.Helper()
	u := store.NewUnitOfWork(s)
	md := metadata.NewStaticProvider()
	for _, tok := range tokens {
		store.GetOrCreateToken(context.Background(), u, md, tok)
	}
	s.Apply(u.Commit())
}

func intPtr(v int) *int { return &v }

func fxPrice(t *testing.T, s *store.MemoryStore, tok common.Address) decimal.NullDecimal {
	t.Helper()
	e, ok := s.Get(entity.KindToken, entity.AddressID(tok))
	if !ok {
		t.Fatalf("token %s missing", tok.Hex())
	}
	return e.(*entity.Token).LatestFXPrice
}

func TestAnswer_NoDivisorUsesEightPlaces(t *testing.T) {
	s := store.NewMemoryStore()
	seedTokens(t, s, eurs)
	n := newNormalizer(nil)

	u := store.NewUnitOfWork(s)
	n.HandleOracleRegistered(u, &event.OracleRegistered{
		Aggregator: aggregator,
		Tokens:     []common.Address{eurs},
		Decimals:   intPtr(10),
	})
	s.Apply(u.Commit())

	u = store.NewUnitOfWork(s)
	if got := n.HandleAnswerUpdated(u, &event.OracleAnswerUpdated{Aggregator: aggregator, Answer: big.NewInt(123456789)}); got != 1 {
		t.Fatalf("updated: got %d, want 1", got)
	}
	s.Apply(u.Commit())

	price := fxPrice(t, s, eurs)
	if !price.Valid || !price.Decimal.Equal(decimal.RequireFromString("1.23456789")) {
		t.Errorf("price: got %v", price)
	}

	e, _ := s.Get(entity.KindToken, entity.AddressID(eurs))
	if e.(*entity.Token).FXOracleDecimals != 10 {
		t.Errorf("fx oracle decimals: got %d, want 10", e.(*entity.Token).FXOracleDecimals)
	}
}

func TestAnswer_DefaultDecimals(t *testing.T) {
	s := store.NewMemoryStore()
	seedTokens(t, s, eurs)
	n := newNormalizer(map[common.Address][]common.Address{aggregator: {eurs}})

	u := store.NewUnitOfWork(s)
	n.HandleAnswerUpdated(u, &event.OracleAnswerUpdated{Aggregator: aggregator, Answer: big.NewInt(110000000)})
	s.Apply(u.Commit())

	e, _ := s.Get(entity.KindToken, entity.AddressID(eurs))
	tok := e.(*entity.Token)
	if tok.FXOracleDecimals != pricing.DefaultOracleDecimals {
		t.Errorf("decimals: got %d, want 8", tok.FXOracleDecimals)
	}
	if !tok.LatestFXPrice.Decimal.Equal(decimal.RequireFromString("1.1")) {
		t.Errorf("price: got %s", tok.LatestFXPrice.Decimal)
	}
}

func TestNormalize_Divisor(t *testing.T) {
	n := newNormalizer(nil)
	oracle := &entity.FXOracle{
		Decimals: intPtr(8),
		Divisor:  decimal.NewNullDecimal(decimal.NewFromInt(1_000_000)),
	}

	// 5e14 * 1e8 / 1e6 = 5e16 -> 500000000 at 8 places
	got := n.Normalize(eurs, big.NewInt(500_000_000_000_000), oracle)
	if !got.Equal(decimal.NewFromInt(500_000_000)) {
		t.Errorf("got %s", got)
	}
}

func TestNormalize_TroyOunceToGram(t *testing.T) {
	n := newNormalizer(nil)

	// 1 ounce at 3110.347680 -> 100 per gram
	answer := big.NewInt(311_034_768_000)
	got := n.Normalize(xau, answer, nil)
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("got %s, want 100", got)
	}
}

func TestAnswer_UnionAndUnknownTokens(t *testing.T) {
	s := store.NewMemoryStore()
	seedTokens(t, s, eurs, xau)
	n := newNormalizer(map[common.Address][]common.Address{aggregator: {eurs, unknown}})

	u := store.NewUnitOfWork(s)
	n.HandleOracleRegistered(u, &event.OracleRegistered{
		Aggregator: aggregator,
		Tokens:     []common.Address{eurs, xau},
	})
	s.Apply(u.Commit())

	e, _ := s.Get(entity.KindFXOracle, entity.AddressID(aggregator))
	if consumers := n.Consumers(e.(*entity.FXOracle), aggregator); len(consumers) != 3 {
		t.Fatalf("consumers: got %v, want eurs, unknown, xau", consumers)
	}

	u = store.NewUnitOfWork(s)
	if got := n.HandleAnswerUpdated(u, &event.OracleAnswerUpdated{Aggregator: aggregator, Answer: big.NewInt(100_000_000)}); got != 2 {
		t.Errorf("updated: got %d, want 2 (unknown token skipped)", got)
	}
	if _, ok := s.Get(entity.KindToken, entity.AddressID(unknown)); ok {
		t.Error("unknown token must not be created")
	}
}

func TestOracleRegistered_AppendOnly(t *testing.T) {
	s := store.NewMemoryStore()
	n := newNormalizer(nil)

	for _, tokens := range [][]common.Address{{eurs}, {xau, eurs}} {
		u := store.NewUnitOfWork(s)
		n.HandleOracleRegistered(u, &event.OracleRegistered{Aggregator: aggregator, Tokens: tokens})
		s.Apply(u.Commit())
	}

	e, _ := s.Get(entity.KindFXOracle, entity.AddressID(aggregator))
	got := e.(*entity.FXOracle).Tokens
	if len(got) != 2 || got[0] != eurs || got[1] != xau {
		t.Errorf("tokens: got %v", got)
	}
}
