package pool

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	fpmath "PoolLedger/internal/math"
	"PoolLedger/internal/store"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// applyBalanceChanged books a join (sum of deltas > 0) or an exit.
// Balances move by the fee-netted delta while the JoinExit record keeps
// the gross amounts.
func (r *Reducer) applyBalanceChanged(ac *applyCtx, evt *event.PoolBalanceChanged) error {
	if len(evt.Deltas) == 0 {
		ac.outcome.Ignored = true
		return nil
	}

	poolID := entity.PoolID(evt.PoolID)
	pool, ok := store.LoadPool(ac.u, poolID)
	if !ok {
		return unknownPool(poolID)
	}

	n := len(evt.Deltas)
	if n != len(pool.TokensList) {
		return fmt.Errorf("%w: pool %s has %d tokens, event carries %d deltas",
			ErrInconsistent, poolID, len(pool.TokensList), n)
	}
	if len(evt.ProtocolFeeAmounts) != 0 && len(evt.ProtocolFeeAmounts) != n {
		return fmt.Errorf("%w: pool %s fee amounts length %d != %d",
			ErrInconsistent, poolID, len(evt.ProtocolFeeAmounts), n)
	}
	if len(evt.Tokens) != 0 && !slicesEqual(evt.Tokens, pool.TokensList) {
		return fmt.Errorf("%w: pool %s event tokens do not match registered tokens", ErrInconsistent, poolID)
	}

	// resolve every position before touching any of them
	poolTokens := make([]*entity.PoolToken, n)
	for i, addr := range pool.TokensList {
		pt, ok := store.LoadPoolToken(ac.u, poolID, addr)
		if !ok {
			return fmt.Errorf("%w: pool %s has no pool token for %s", ErrInconsistent, poolID, addr.Hex())
		}
		poolTokens[i] = pt
	}

	isJoin := fpmath.SumInts(evt.Deltas).Sign() > 0
	joinExitType := entity.JoinExitTypeExit
	if isJoin {
		joinExitType = entity.JoinExitTypeJoin
	}

	// only a pool registered with its own share token was preminted
	compensates := isJoin && pool.Capabilities.HasVirtualSupply && pool.HoldsOwnShare()

	amounts := make([]decimal.Decimal, n)
	for i, pt := range poolTokens {
		delta := evt.Deltas[i]
		if delta == nil {
			delta = new(big.Int)
		}
		net := new(big.Int).Set(delta)
		if len(evt.ProtocolFeeAmounts) > 0 && evt.ProtocolFeeAmounts[i] != nil {
			net.Sub(net, evt.ProtocolFeeAmounts[i])
		}

		if isJoin {
			amounts[i] = fpmath.ToDecimal(delta, pt.Decimals)
		} else {
			amounts[i] = fpmath.ToDecimal(new(big.Int).Neg(delta), pt.Decimals)
		}

		change := fpmath.ToDecimal(net, pt.Decimals)
		pt.Balance = pt.Balance.Add(change)
		pt.CashBalance = pt.CashBalance.Add(change)
		ac.u.Put(pt)

		token := store.GetOrCreateToken(ac.ctx, ac.u, r.md, pt.Token)
		token.TotalBalanceNotional = token.TotalBalanceNotional.Add(change)
		ac.u.Put(token)

		if compensates && pt.Token == pool.Address && delta.Sign() > 0 {
			r.compensatePremint(ac, pool, delta)
		}
	}

	store.GetOrCreateUser(ac.u, evt.LiquidityProvider)
	ac.u.Put(&entity.JoinExit{
		ID:        entity.EventID(evt.TxHash, evt.LogIndex),
		Type:      joinExitType,
		PoolID:    poolID,
		Sender:    evt.LiquidityProvider,
		Amounts:   amounts,
		Timestamp: evt.Timestamp,
		Block:     evt.Block,
		TxHash:    evt.TxHash,
	})

	pool.JoinsExitsCount++
	ac.u.Put(pool)

	protocol := store.GetOrCreateProtocol(ac.u)
	protocol.TotalLiquidityEvents++
	ac.u.Put(protocol)

	ac.requestRefresh(poolID)
	return nil
}

// compensatePremint removes the preminted share amount carried by a
// virtual-supply pool's initialization join. The share mint and transfer
// into the vault have already been booked from the token's own Transfer
// events, so total shares drop explicitly and a derived vault-to-zero
// transfer takes the amount off the vault's share balance.
func (r *Reducer) compensatePremint(ac *applyCtx, pool *entity.Pool, preminted *big.Int) {
	pool.TotalShares = pool.TotalShares.Sub(fpmath.ToDecimal(preminted, fpmath.ShareDecimals))
	ac.u.Put(pool)

	ac.emit(&event.ShareTransfer{
		Meta:        ac.meta,
		PoolAddress: pool.Address,
		From:        r.vault,
		To:          common.Address{},
		Value:       new(big.Int).Set(preminted),
		Derived:     true,
	})
}

func (r *Reducer) applyBalanceManaged(ac *applyCtx, evt *event.PoolBalanceManaged) error {
	poolID := entity.PoolID(evt.PoolID)
	if _, ok := store.LoadPool(ac.u, poolID); !ok {
		return unknownPool(poolID)
	}
	pt, ok := store.LoadPoolToken(ac.u, poolID, evt.Token)
	if !ok {
		return fmt.Errorf("%w: pool %s has no token %s", ErrUnknownReference, poolID, evt.Token.Hex())
	}

	cash := fpmath.ToDecimal(evt.CashDelta, pt.Decimals)
	managed := fpmath.ToDecimal(evt.ManagedDelta, pt.Decimals)

	pt.Balance = pt.Balance.Add(cash).Add(managed)
	pt.CashBalance = pt.CashBalance.Add(cash)
	pt.ManagedBalance = pt.ManagedBalance.Add(managed)
	ac.u.Put(pt)

	opType := entity.OperationUpdate
	switch cash.Sign() {
	case 1:
		opType = entity.OperationDeposit
	case -1:
		opType = entity.OperationWithdraw
	}
	ac.u.Put(&entity.ManagementOperation{
		ID:           entity.EventID(evt.TxHash, evt.LogIndex),
		PoolTokenID:  pt.ID,
		Type:         opType,
		CashDelta:    cash,
		ManagedDelta: managed,
		Timestamp:    evt.Timestamp,
	})

	ac.requestRefresh(poolID)
	return nil
}

// applyInternalBalanceChanged accumulates a user's vault-held balance. When
// the token is a pool share token the change is booked as a derived share
// transfer: a negative delta reads as user -> vault, a positive one as
// vault -> user.
func (r *Reducer) applyInternalBalanceChanged(ac *applyCtx, evt *event.InternalBalanceChanged) error {
	token := store.GetOrCreateToken(ac.ctx, ac.u, r.md, evt.Token)

	balance := store.GetOrCreateUserInternalBalance(ac.u, evt.User, evt.Token)
	balance.Balance = balance.Balance.Add(fpmath.ToDecimal(evt.Delta, token.Decimals))
	ac.u.Put(balance)

	if evt.Delta == nil || evt.Delta.Sign() == 0 {
		return nil
	}
	pool, ok := store.LoadPoolByAddress(ac.u, evt.Token)
	if !ok {
		return nil
	}

	transfer := &event.ShareTransfer{
		Meta:        ac.meta,
		PoolAddress: pool.Address,
		Value:       new(big.Int).Abs(evt.Delta),
		Derived:     true,
	}
	if evt.Delta.Sign() < 0 {
		transfer.From, transfer.To = evt.User, r.vault
	} else {
		transfer.From, transfer.To = r.vault, evt.User
	}
	ac.emit(transfer)
	return nil
}
