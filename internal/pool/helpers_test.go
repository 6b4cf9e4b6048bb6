package pool_test

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"PoolLedger/internal/metadata"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/pool"
	"PoolLedger/internal/pricing"
	"PoolLedger/internal/store"
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	weightedPoolHex = "0x32296969ef14eb0c6d29669c550d4a0449130230000200000000000000000080"
	stablePoolHex   = "0x8159462d255c1d24915cb51ec361f700174cd99400000000000000000000075d"
)

var (
	weightedPoolID   = common.HexToHash(weightedPoolHex)
	weightedPoolAddr = entity.PoolAddress(weightedPoolID)
	stablePoolID     = common.HexToHash(stablePoolHex)
	stablePoolAddr   = entity.PoolAddress(stablePoolID)

	vault   = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")
	tokenA  = common.HexToAddress("0x00000000000000000000000000000000000000a6")
	tokenB  = common.HexToAddress("0x00000000000000000000000000000000000000b8")
	tokenC  = common.HexToAddress("0x00000000000000000000000000000000000000c8")
	alice   = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	zeroAdr = common.Address{}
)

type harness struct {
	t       *testing.T
	store   *store.MemoryStore
	md      *metadata.StaticProvider
	reducer *pool.Reducer
	logIdx  uint
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	md := metadata.NewStaticProvider()
	md.SetToken(tokenA, "A", "Token A", 6)
	md.SetToken(tokenB, "B", "Token B", 18)
	md.SetToken(tokenC, "C", "Token C", 18)

	logger := observability.NewTestLogger(io.Discard, "reducer")
	normalizer := pricing.NewNormalizer(nil, common.Address{}, nil, logger)

	return &harness{
		t:       t,
		store:   store.NewMemoryStore(),
		md:      md,
		reducer: pool.NewReducer(md, normalizer, vault, logger),
	}
}

// meta returns a fresh chain position for every event.
func (h *harness) meta() event.Meta {
	h.logIdx++
	return event.Meta{
		Block:     100,
		TxHash:    common.BigToHash(big.NewInt(int64(h.logIdx))),
		LogIndex:  h.logIdx,
		Timestamp: 1_700_000_000,
	}
}

// apply runs one event the way the engine does: reduce, check, commit.
// A failed event leaves the store untouched.
func (h *harness) apply(evt event.Event) (pool.Outcome, error) {
	u := store.NewUnitOfWork(h.store)
	out, err := h.reducer.Apply(context.Background(), u, evt)
	if err != nil {
		return out, err
	}
	if err := h.reducer.CheckInvariants(u); err != nil {
		return out, err
	}
	h.store.Apply(u.Commit())
	return out, nil
}

func (h *harness) mustApply(evt event.Event) pool.Outcome {
	h.t.Helper()
	out, err := h.apply(evt)
	if err != nil {
		h.t.Fatalf("apply %s: %v", evt.EventType(), err)
	}
	return out
}

func (h *harness) createPool(id common.Hash, pt entity.PoolType, tokens ...common.Address) {
	h.t.Helper()
	h.mustApply(&event.PoolCreated{Meta: h.meta(), PoolID: id, PoolType: pt, SwapFee: e(1, 15)})
	h.mustApply(&event.TokensRegistered{Meta: h.meta(), PoolID: id, Tokens: tokens})
}

func (h *harness) pool(id common.Hash) *entity.Pool {
	h.t.Helper()
	e, ok := h.store.Get(entity.KindPool, entity.PoolID(id))
	if !ok {
		h.t.Fatalf("pool %s missing", id.Hex())
	}
	return e.(*entity.Pool)
}

func (h *harness) poolToken(id common.Hash, token common.Address) *entity.PoolToken {
	h.t.Helper()
	e, ok := h.store.Get(entity.KindPoolToken, entity.PoolTokenID(entity.PoolID(id), token))
	if !ok {
		h.t.Fatalf("pool token %s missing", token.Hex())
	}
	return e.(*entity.PoolToken)
}

func (h *harness) share(id common.Hash, user common.Address) decimal.Decimal {
	h.t.Helper()
	e, ok := h.store.Get(entity.KindPoolShare, entity.PoolShareID(entity.PoolID(id), user))
	if !ok {
		return decimal.Zero
	}
	return e.(*entity.PoolShare).Balance
}

// e returns v * 10^exp as a raw integer amount.
func e(v int64, exp int) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
}

func ints(vs ...*big.Int) []*big.Int { return vs }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: got %s, want %s", what, got, want)
	}
}
