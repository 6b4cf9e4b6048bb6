package pool

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	fpmath "PoolLedger/internal/math"
	"PoolLedger/internal/store"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const priceDivisionPlaces = 18

func (r *Reducer) applySwap(ac *applyCtx, evt *event.Swap) error {
	poolID := entity.PoolID(evt.PoolID)
	pool, ok := store.LoadPool(ac.u, poolID)
	if !ok {
		return unknownPool(poolID)
	}

	if pool.Capabilities.IsVariableWeight {
		r.refreshWeights(ac, pool)
	}
	if pool.Capabilities.IsStableLike {
		r.refreshAmp(ac, pool)
	}

	ptIn, ok := store.LoadPoolToken(ac.u, poolID, evt.TokenIn)
	if !ok {
		return fmt.Errorf("%w: pool %s has no token %s", ErrUnknownReference, poolID, evt.TokenIn.Hex())
	}
	ptOut, ok := store.LoadPoolToken(ac.u, poolID, evt.TokenOut)
	if !ok {
		return fmt.Errorf("%w: pool %s has no token %s", ErrUnknownReference, poolID, evt.TokenOut.Hex())
	}

	// a swap through the pool's own share token is a burn (share in) or
	// mint (share out) of virtual supply held by the vault
	if evt.TokenIn == pool.Address {
		r.adjustVirtualSupply(ac, pool, fpmath.ToDecimal(evt.AmountIn, fpmath.ShareDecimals).Neg())
	}
	if evt.TokenOut == pool.Address {
		r.adjustVirtualSupply(ac, pool, fpmath.ToDecimal(evt.AmountOut, fpmath.ShareDecimals))
	}

	amountIn := fpmath.ToDecimal(evt.AmountIn, ptIn.Decimals)
	amountOut := fpmath.ToDecimal(evt.AmountOut, ptOut.Decimals)

	ptIn.Balance = ptIn.Balance.Add(amountIn)
	ptIn.CashBalance = ptIn.CashBalance.Add(amountIn)
	ac.u.Put(ptIn)

	ptOut.Balance = ptOut.Balance.Sub(amountOut)
	ptOut.CashBalance = ptOut.CashBalance.Sub(amountOut)
	ac.u.Put(ptOut)

	isJoinExitSwap := evt.TokenIn == pool.Address || evt.TokenOut == pool.Address
	if pool.IsComposableStable() && isJoinExitSwap {
		if err := r.refreshInvariant(ac, pool); err != nil {
			return err
		}
	}

	store.GetOrCreateUser(ac.u, evt.Sender)
	ac.u.Put(&entity.Swap{
		ID:             entity.EventID(evt.TxHash, evt.LogIndex),
		PoolID:         poolID,
		Caller:         evt.Sender,
		TokenIn:        evt.TokenIn,
		TokenInSymbol:  ptIn.Symbol,
		TokenAmountIn:  amountIn,
		TokenOut:       evt.TokenOut,
		TokenOutSymbol: ptOut.Symbol,
		TokenAmountOut: amountOut,
		Timestamp:      evt.Timestamp,
		Block:          evt.Block,
		TxHash:         evt.TxHash,
	})

	pool.SwapsCount++
	ac.u.Put(pool)

	protocol := store.GetOrCreateProtocol(ac.u)
	protocol.TotalSwapCount++
	ac.u.Put(protocol)

	tokenIn := store.GetOrCreateToken(ac.ctx, ac.u, r.md, evt.TokenIn)
	tokenIn.TotalSwapCount++
	tokenIn.TotalBalanceNotional = tokenIn.TotalBalanceNotional.Add(amountIn)
	ac.u.Put(tokenIn)

	tokenOut := store.GetOrCreateToken(ac.ctx, ac.u, r.md, evt.TokenOut)
	tokenOut.TotalSwapCount++
	tokenOut.TotalBalanceNotional = tokenOut.TotalBalanceNotional.Sub(amountOut)
	ac.u.Put(tokenOut)

	// a zero leg carries no price signal
	if !amountIn.IsZero() && !amountOut.IsZero() {
		r.updateLatestPrices(ac, poolID, evt, amountIn, amountOut)
	}

	ac.requestRefresh(poolID)
	return nil
}

func (r *Reducer) adjustVirtualSupply(ac *applyCtx, pool *entity.Pool, delta decimal.Decimal) {
	pool.TotalShares = pool.TotalShares.Add(delta)
	ac.u.Put(pool)

	r.adjustShare(ac, pool, store.GetOrCreatePoolShare(ac.u, pool.ID, r.vault), delta)
}

func (r *Reducer) updateLatestPrices(ac *applyCtx, poolID string, evt *event.Swap, amountIn, amountOut decimal.Decimal) {
	in := store.GetOrCreateLatestPrice(ac.u, poolID, evt.TokenIn, evt.TokenOut)
	in.Price = amountOut.DivRound(amountIn, priceDivisionPlaces)
	in.Block = evt.Block
	ac.u.Put(in)

	out := store.GetOrCreateLatestPrice(ac.u, poolID, evt.TokenOut, evt.TokenIn)
	out.Price = amountIn.DivRound(amountOut, priceDivisionPlaces)
	out.Block = evt.Block
	ac.u.Put(out)
}

// refreshInvariant recomputes the StableSwap invariant over the pool's
// non-share balances, each scaled to 18 decimals and multiplied by its
// price rate. A pool that cannot produce an invariant yet (no amp, an
// empty balance) keeps its previous value.
func (r *Reducer) refreshInvariant(ac *applyCtx, pool *entity.Pool) error {
	if !pool.Amp.IsPositive() {
		r.logger.Warn().Str("pool_id", pool.ID).Msg("no amplification parameter, invariant not refreshed")
		return nil
	}

	balances := make([]*big.Int, 0, len(pool.TokensList))
	for _, addr := range pool.TokensList {
		if addr == pool.Address {
			continue
		}
		pt, ok := store.LoadPoolToken(ac.u, pool.ID, addr)
		if !ok {
			return fmt.Errorf("%w: pool %s has no pool token for %s", ErrInconsistent, pool.ID, addr.Hex())
		}
		balances = append(balances, fpmath.FromDecimal(pt.Balance.Mul(pt.PriceRate), fpmath.ShareDecimals))
	}

	invariant, err := fpmath.StableInvariant(pool.Amp.BigInt(), balances)
	if err != nil {
		r.logger.Warn().Err(err).Str("pool_id", pool.ID).Msg("invariant not refreshed")
		return nil
	}

	pool.LastPostJoinExitInvariant = fpmath.ToDecimal(invariant, fpmath.ShareDecimals)
	pool.LastJoinExitAmp = pool.Amp
	ac.u.Put(pool)
	return nil
}
