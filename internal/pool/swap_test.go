package pool_test

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"PoolLedger/internal/metadata"
	"PoolLedger/internal/pool"
	"errors"
	"math/big"
	"testing"
)

func seedWeighted(h *harness) {
	h.t.Helper()
	h.createPool(weightedPoolID, entity.PoolTypeWeighted, tokenA, tokenB)
	h.mustApply(&event.PoolBalanceChanged{
		Meta: h.meta(), PoolID: weightedPoolID, LiquidityProvider: alice,
		Deltas: ints(big.NewInt(100_000000), e(100, 18)),
	})
}

func TestSwap_UpdatesBalancesCountsAndPrices(t *testing.T) {
	h := newHarness(t)
	seedWeighted(h)

	m := h.meta()
	h.mustApply(&event.Swap{
		Meta: m, PoolID: weightedPoolID, Sender: bob,
		TokenIn: tokenA, TokenOut: tokenB,
		AmountIn: big.NewInt(2_000000), AmountOut: e(1, 18),
	})

	assertDecimal(t, "A balance", h.poolToken(weightedPoolID, tokenA).Balance, "102")
	assertDecimal(t, "B balance", h.poolToken(weightedPoolID, tokenB).Balance, "99")
	assertDecimal(t, "B cash", h.poolToken(weightedPoolID, tokenB).CashBalance, "99")

	if got := h.pool(weightedPoolID).SwapsCount; got != 1 {
		t.Errorf("pool swaps: got %d, want 1", got)
	}
	p, _ := h.store.Get(entity.KindProtocol, entity.ProtocolID)
	if got := p.(*entity.Protocol).TotalSwapCount; got != 1 {
		t.Errorf("protocol swaps: got %d, want 1", got)
	}

	s, ok := h.store.Get(entity.KindSwap, entity.EventID(m.TxHash, m.LogIndex))
	if !ok {
		t.Fatal("swap record missing")
	}
	swap := s.(*entity.Swap)
	if swap.TokenInSymbol != "A" || swap.TokenOutSymbol != "B" {
		t.Errorf("swap symbols: %s -> %s", swap.TokenInSymbol, swap.TokenOutSymbol)
	}
	assertDecimal(t, "swap amount in", swap.TokenAmountIn, "2")

	poolID := entity.PoolID(weightedPoolID)
	lp, ok := h.store.Get(entity.KindLatestPrice, entity.LatestPriceID(poolID, tokenA, tokenB))
	if !ok {
		t.Fatal("latest price A/B missing")
	}
	assertDecimal(t, "price A in B", lp.(*entity.LatestPrice).Price, "0.5")
	lp, _ = h.store.Get(entity.KindLatestPrice, entity.LatestPriceID(poolID, tokenB, tokenA))
	assertDecimal(t, "price B in A", lp.(*entity.LatestPrice).Price, "2")
}

func TestSwap_ZeroLegSkipsPrices(t *testing.T) {
	h := newHarness(t)
	seedWeighted(h)

	h.mustApply(&event.Swap{
		Meta: h.meta(), PoolID: weightedPoolID, Sender: bob,
		TokenIn: tokenA, TokenOut: tokenB,
		AmountIn: big.NewInt(1_000000), AmountOut: big.NewInt(0),
	})

	if n := len(h.store.List(entity.KindLatestPrice)); n != 0 {
		t.Errorf("latest prices: got %d, want 0", n)
	}
	assertDecimal(t, "A balance", h.poolToken(weightedPoolID, tokenA).Balance, "101")
	if got := h.pool(weightedPoolID).SwapsCount; got != 1 {
		t.Errorf("zero-leg swap still counts: got %d", got)
	}
}

func TestSwap_UnknownPoolIsRecoverable(t *testing.T) {
	h := newHarness(t)
	seedWeighted(h)
	before := h.store.Count()

	_, err := h.apply(&event.Swap{
		Meta: h.meta(), PoolID: stablePoolID, TokenIn: tokenA, TokenOut: tokenB,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1),
	})
	if !errors.Is(err, pool.ErrUnknownReference) {
		t.Fatalf("got %v, want ErrUnknownReference", err)
	}
	if h.store.Count() != before {
		t.Error("rejected swap mutated the store")
	}
}

func TestSwap_UnregisteredTokenIsRecoverable(t *testing.T) {
	h := newHarness(t)
	seedWeighted(h)

	_, err := h.apply(&event.Swap{
		Meta: h.meta(), PoolID: weightedPoolID, TokenIn: tokenC, TokenOut: tokenB,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1),
	})
	if !errors.Is(err, pool.ErrUnknownReference) {
		t.Fatalf("got %v, want ErrUnknownReference", err)
	}
	assertDecimal(t, "B balance", h.poolToken(weightedPoolID, tokenB).Balance, "100")
}

// seedComposable creates a composable stable pool holding its own share
// token at index 0 and initializes it the way the vault does: the premint
// lands in the vault first, then the init join books it as a pool balance.
func seedComposable(h *harness) pool.Outcome {
	h.t.Helper()
	h.md.SetAmp(stablePoolAddr, big.NewInt(200_000))
	h.createPool(stablePoolID, entity.PoolTypeComposableStable, stablePoolAddr, tokenB, tokenC)

	premint := e(1, 30)
	h.mustApply(&event.ShareTransfer{Meta: h.meta(), PoolAddress: stablePoolAddr, From: zeroAdr, To: vault, Value: premint})
	return h.mustApply(&event.PoolBalanceChanged{
		Meta: h.meta(), PoolID: stablePoolID, LiquidityProvider: alice,
		Deltas: ints(premint, e(1000, 18), e(1000, 18)),
	})
}

func TestInitJoin_CompensatesPremint(t *testing.T) {
	h := newHarness(t)
	out := seedComposable(h)

	if out.Derived != 1 {
		t.Errorf("derived events: got %d, want 1", out.Derived)
	}
	p := h.pool(stablePoolID)
	if !p.TotalShares.IsZero() {
		t.Errorf("total shares: got %s, want 0", p.TotalShares)
	}
	if !h.share(stablePoolID, vault).IsZero() {
		t.Errorf("vault share: got %s, want 0", h.share(stablePoolID, vault))
	}
	if p.HoldersCount != 0 {
		t.Errorf("holders: got %d, want 0", p.HoldersCount)
	}
	assertDecimal(t, "amp", p.Amp, "200000")
}

func TestInitJoin_NoPremintWithoutOwnShareToken(t *testing.T) {
	h := newHarness(t)
	h.createPool(stablePoolID, entity.PoolTypeComposableStable, tokenB, tokenC)

	out := h.mustApply(&event.PoolBalanceChanged{
		Meta: h.meta(), PoolID: stablePoolID, LiquidityProvider: alice,
		Deltas: ints(e(1000, 18), e(1000, 18)),
	})

	if out.Derived != 0 {
		t.Errorf("derived events: got %d, want 0", out.Derived)
	}
	if !h.pool(stablePoolID).TotalShares.IsZero() {
		t.Errorf("total shares: got %s, want 0", h.pool(stablePoolID).TotalShares)
	}
	if _, ok := h.store.Get(entity.KindPoolShare, entity.PoolShareID(entity.PoolID(stablePoolID), vault)); ok {
		t.Error("vault share must not be booked")
	}
	assertDecimal(t, "B balance", h.poolToken(stablePoolID, tokenB).Balance, "1000")
}

func TestSwap_VirtualSupplySymmetry(t *testing.T) {
	h := newHarness(t)
	seedComposable(h)
	shares := h.pool(stablePoolID).TotalShares
	vaultShare := h.share(stablePoolID, vault)

	h.mustApply(&event.Swap{
		Meta: h.meta(), PoolID: stablePoolID, Sender: bob,
		TokenIn: tokenB, TokenOut: stablePoolAddr,
		AmountIn: e(10, 18), AmountOut: e(10, 18),
	})
	assertDecimal(t, "shares after mint", h.pool(stablePoolID).TotalShares, "10")

	h.mustApply(&event.Swap{
		Meta: h.meta(), PoolID: stablePoolID, Sender: bob,
		TokenIn: stablePoolAddr, TokenOut: tokenB,
		AmountIn: e(10, 18), AmountOut: e(10, 18),
	})

	if got := h.pool(stablePoolID).TotalShares; !got.Equal(shares) {
		t.Errorf("total shares: got %s, want %s", got, shares)
	}
	if got := h.share(stablePoolID, vault); !got.Equal(vaultShare) {
		t.Errorf("vault share: got %s, want %s", got, vaultShare)
	}
	assertDecimal(t, "B balance", h.poolToken(stablePoolID, tokenB).Balance, "1000")
}

func TestSwap_ComposableJoinRefreshesInvariant(t *testing.T) {
	h := newHarness(t)
	seedComposable(h)

	h.mustApply(&event.Swap{
		Meta: h.meta(), PoolID: stablePoolID, Sender: bob,
		TokenIn: tokenB, TokenOut: stablePoolAddr,
		AmountIn: e(10, 18), AmountOut: e(10, 18),
	})

	// amp 200 over balances [1010, 1000]
	p := h.pool(stablePoolID)
	assertDecimal(t, "invariant", p.LastPostJoinExitInvariant, "2009.999876237646566883")
	assertDecimal(t, "last join/exit amp", p.LastJoinExitAmp, "200000")
}

func TestSwap_ComposableInvariantAppliesPriceRates(t *testing.T) {
	h := newHarness(t)
	seedComposable(h)

	h.mustApply(&event.TokenRateUpdated{
		Meta: h.meta(), PoolAddress: stablePoolAddr, Token: tokenC,
		Rate: big.NewInt(1_050000000000000000),
	})
	h.mustApply(&event.Swap{
		Meta: h.meta(), PoolID: stablePoolID, Sender: bob,
		TokenIn: tokenB, TokenOut: stablePoolAddr,
		AmountIn: e(10, 18), AmountOut: e(10, 18),
	})

	// C's 1000 counts as 1050 once its rate applies
	assertDecimal(t, "C price rate", h.poolToken(stablePoolID, tokenC).PriceRate, "1.05")
	assertDecimal(t, "invariant", h.pool(stablePoolID).LastPostJoinExitInvariant, "2059.998067189544030919")
}

func TestSwap_AmpReadingRescaledToStoredPrecision(t *testing.T) {
	h := newHarness(t)
	seedComposable(h)
	h.md.SetAmpReading(stablePoolAddr, metadata.AmpReading{Value: big.NewInt(200), Precision: big.NewInt(1)})

	h.mustApply(&event.TokenRateUpdated{
		Meta: h.meta(), PoolAddress: stablePoolAddr, Token: tokenC,
		Rate: big.NewInt(1_050000000000000000),
	})
	h.mustApply(&event.Swap{
		Meta: h.meta(), PoolID: stablePoolID, Sender: bob,
		TokenIn: tokenB, TokenOut: stablePoolAddr,
		AmountIn: e(10, 18), AmountOut: e(10, 18),
	})

	p := h.pool(stablePoolID)
	assertDecimal(t, "amp", p.Amp, "200000")
	assertDecimal(t, "invariant", p.LastPostJoinExitInvariant, "2059.998067189544030919")
}

func TestSwap_ComposableTokenSwapKeepsInvariant(t *testing.T) {
	h := newHarness(t)
	seedComposable(h)

	h.mustApply(&event.Swap{
		Meta: h.meta(), PoolID: stablePoolID, Sender: bob,
		TokenIn: tokenB, TokenOut: tokenC,
		AmountIn: e(10, 18), AmountOut: e(9, 18),
	})
	if !h.pool(stablePoolID).LastPostJoinExitInvariant.IsZero() {
		t.Error("a plain token swap must not refresh the join/exit invariant")
	}
}
