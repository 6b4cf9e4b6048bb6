package pool_test

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"PoolLedger/internal/pool"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestShareTransfer_HoldersCount(t *testing.T) {
	h := newHarness(t)
	h.createPool(weightedPoolID, entity.PoolTypeWeighted, tokenA, tokenB)

	transfer := func(from, to common.Address, v *big.Int) {
		h.t.Helper()
		h.mustApply(&event.ShareTransfer{Meta: h.meta(), PoolAddress: weightedPoolAddr, From: from, To: to, Value: v})
	}

	transfer(zeroAdr, alice, e(3, 18))
	transfer(zeroAdr, bob, e(1, 18))
	if got := h.pool(weightedPoolID).HoldersCount; got != 2 {
		t.Fatalf("holders after mints: got %d, want 2", got)
	}
	assertDecimal(t, "total shares", h.pool(weightedPoolID).TotalShares, "4")

	transfer(alice, bob, e(3, 18))
	if got := h.pool(weightedPoolID).HoldersCount; got != 1 {
		t.Errorf("holders after full transfer: got %d, want 1", got)
	}

	transfer(bob, zeroAdr, e(1, 18))
	if got := h.pool(weightedPoolID).HoldersCount; got != 1 {
		t.Errorf("holders after partial burn: got %d, want 1", got)
	}
	transfer(bob, zeroAdr, e(3, 18))

	p := h.pool(weightedPoolID)
	if p.HoldersCount != 0 || !p.TotalShares.IsZero() {
		t.Errorf("after burning everything: holders=%d shares=%s", p.HoldersCount, p.TotalShares)
	}
	if n := len(h.store.List(entity.KindPoolShare)); n != 2 {
		t.Errorf("share rows for zero address must not exist: got %d rows", n)
	}
}

func TestShareTransfer_OverdraftIsInconsistent(t *testing.T) {
	h := newHarness(t)
	h.createPool(weightedPoolID, entity.PoolTypeWeighted, tokenA, tokenB)

	_, err := h.apply(&event.ShareTransfer{Meta: h.meta(), PoolAddress: weightedPoolAddr, From: alice, To: bob, Value: big.NewInt(1)})
	if !errors.Is(err, pool.ErrInconsistent) {
		t.Fatalf("got %v, want ErrInconsistent", err)
	}
	if n := len(h.store.List(entity.KindPoolShare)); n != 0 {
		t.Errorf("rejected transfer left %d share rows", n)
	}
}

func TestShareTransfer_UnknownPoolIsRecoverable(t *testing.T) {
	h := newHarness(t)
	_, err := h.apply(&event.ShareTransfer{Meta: h.meta(), PoolAddress: weightedPoolAddr, From: zeroAdr, To: alice, Value: big.NewInt(1)})
	if !errors.Is(err, pool.ErrUnknownReference) {
		t.Fatalf("got %v, want ErrUnknownReference", err)
	}
}

func TestInternalBalance_ShareTokenDerivesTransfer(t *testing.T) {
	h := newHarness(t)
	h.createPool(weightedPoolID, entity.PoolTypeWeighted, tokenA, tokenB)
	h.mustApply(&event.ShareTransfer{Meta: h.meta(), PoolAddress: weightedPoolAddr, From: zeroAdr, To: alice, Value: e(5, 18)})
	shares := h.pool(weightedPoolID).TotalShares

	out := h.mustApply(&event.InternalBalanceChanged{Meta: h.meta(), User: alice, Token: weightedPoolAddr, Delta: e(-2, 18)})
	if out.Derived != 1 {
		t.Fatalf("derived events: got %d, want 1", out.Derived)
	}
	assertDecimal(t, "alice share", h.share(weightedPoolID, alice), "3")
	assertDecimal(t, "vault share", h.share(weightedPoolID, vault), "2")

	out = h.mustApply(&event.InternalBalanceChanged{Meta: h.meta(), User: alice, Token: weightedPoolAddr, Delta: e(1, 18)})
	if out.Derived != 1 {
		t.Fatalf("derived events: got %d, want 1", out.Derived)
	}
	assertDecimal(t, "alice share", h.share(weightedPoolID, alice), "4")
	assertDecimal(t, "vault share", h.share(weightedPoolID, vault), "1")

	if got := h.pool(weightedPoolID).TotalShares; !got.Equal(shares) {
		t.Errorf("derived transfers changed total shares: %s -> %s", shares, got)
	}

	b, ok := h.store.Get(entity.KindUserInternalBalance, entity.UserInternalBalanceID(alice, weightedPoolAddr))
	if !ok {
		t.Fatal("internal balance missing")
	}
	assertDecimal(t, "internal balance", b.(*entity.UserInternalBalance).Balance, "-1")
}

func TestInternalBalance_PlainTokenNoDerived(t *testing.T) {
	h := newHarness(t)

	out := h.mustApply(&event.InternalBalanceChanged{Meta: h.meta(), User: bob, Token: tokenA, Delta: big.NewInt(2_500000)})
	if out.Derived != 0 {
		t.Errorf("derived events: got %d, want 0", out.Derived)
	}
	b, _ := h.store.Get(entity.KindUserInternalBalance, entity.UserInternalBalanceID(bob, tokenA))
	assertDecimal(t, "internal balance", b.(*entity.UserInternalBalance).Balance, "2.5")
}
