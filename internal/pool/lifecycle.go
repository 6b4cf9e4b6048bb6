package pool

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	fpmath "PoolLedger/internal/math"
	"PoolLedger/internal/store"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func (r *Reducer) applyPoolCreated(ac *applyCtx, evt *event.PoolCreated) error {
	poolID := entity.PoolID(evt.PoolID)
	if _, ok := store.LoadPool(ac.u, poolID); ok {
		r.logger.Debug().Str("pool_id", poolID).Msg("pool already created, ignoring")
		ac.outcome.Ignored = true
		return nil
	}

	addr := entity.PoolAddress(evt.PoolID)
	pool := &entity.Pool{
		ID:              poolID,
		Address:         addr,
		PoolType:        evt.PoolType,
		PoolTypeVersion: evt.PoolTypeVersion,
		Capabilities:    entity.CapabilitiesOf(evt.PoolType),
		Specialization:  entity.PoolSpecialization(evt.PoolID),
		Factory:         evt.Factory,
		Owner:           evt.Owner,
		TotalShares:     decimal.Zero,
		TotalWeight:     decimal.Zero,
		SwapFee:         fpmath.ToDecimal(evt.SwapFee, fpmath.ShareDecimals),
		SwapEnabled:     true,
		CreateTime:      evt.Timestamp,
		CreatedBlock:    evt.Block,
	}
	ac.u.Put(pool)
	ac.u.Put(&entity.PoolContract{ID: entity.AddressID(addr), PoolID: poolID})

	// the share token itself, linked back to its pool
	store.GetOrCreateToken(ac.ctx, ac.u, r.md, addr)

	if pool.Capabilities.IsStableLike {
		r.refreshAmp(ac, pool)
	}

	protocol := store.GetOrCreateProtocol(ac.u)
	protocol.PoolCount++
	ac.u.Put(protocol)
	return nil
}

func (r *Reducer) applyTokensRegistered(ac *applyCtx, evt *event.TokensRegistered) error {
	poolID := entity.PoolID(evt.PoolID)
	pool, ok := store.LoadPool(ac.u, poolID)
	if !ok {
		return unknownPool(poolID)
	}

	if len(lo.Uniq(evt.Tokens)) != len(evt.Tokens) {
		return fmt.Errorf("%w: pool %s registers duplicate tokens", ErrInconsistent, poolID)
	}
	if len(pool.TokensList) > 0 {
		if slicesEqual(pool.TokensList, evt.Tokens) {
			ac.outcome.Ignored = true
			return nil
		}
		return fmt.Errorf("%w: pool %s token list already fixed", ErrInconsistent, poolID)
	}

	pool.TokensList = append([]common.Address{}, evt.Tokens...)

	providers := r.md.RateProviders(ac.ctx, pool.Address).Or(nil)

	for i, addr := range evt.Tokens {
		token := store.GetOrCreateToken(ac.ctx, ac.u, r.md, addr)
		pt := store.GetOrCreatePoolToken(ac.u, poolID, token, i)
		if i < len(evt.AssetManagers) {
			pt.AssetManager = evt.AssetManagers[i]
		}
		if i < len(providers) {
			pt.RateProvider = providers[i]
		}
		if pool.IsComposableStable() {
			pt.IsExemptFromYieldProtocolFee = r.md.IsTokenExemptFromYieldProtocolFee(ac.ctx, pool.Address, addr).Or(false)
		}
		ac.u.Put(pt)
	}
	ac.u.Put(pool)

	if pool.Capabilities.IsVariableWeight || pool.PoolType == entity.PoolTypeWeighted {
		r.refreshWeights(ac, pool)
	}
	return nil
}

func slicesEqual(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// refreshAmp reads the current (possibly ramping) amplification parameter
// and stores it scaled by fpmath.AmpPrecision. A reading without a
// precision is taken to already use that scale. A failed read keeps the
// last known value.
func (r *Reducer) refreshAmp(ac *applyCtx, pool *entity.Pool) {
	res := r.md.Amp(ac.ctx, pool.Address)
	if res.Failed || res.Value.Value == nil {
		r.logger.Debug().Str("pool_id", pool.ID).Msg("amp read failed, keeping last value")
		return
	}

	amp := res.Value.Value
	if precision := res.Value.Precision; precision != nil && precision.Sign() > 0 && precision.Cmp(fpmath.AmpPrecision) != 0 {
		amp = fpmath.MulDiv(amp, fpmath.AmpPrecision, precision)
		if new(big.Int).Mul(amp, precision).Cmp(new(big.Int).Mul(res.Value.Value, fpmath.AmpPrecision)) != 0 {
			r.logger.Warn().
				Str("pool_id", pool.ID).
				Str("amp", res.Value.Value.String()).
				Str("precision", precision.String()).
				Msg("amp truncated to stored precision")
		}
	}
	pool.Amp = decimal.NewFromBigInt(amp, 0)
	ac.u.Put(pool)
}

// refreshWeights reads the current normalized weights. A failed read keeps
// the last known weights.
func (r *Reducer) refreshWeights(ac *applyCtx, pool *entity.Pool) {
	res := r.md.NormalizedWeights(ac.ctx, pool.Address)
	if res.Failed {
		r.logger.Debug().Str("pool_id", pool.ID).Msg("weights read failed, keeping last value")
		return
	}

	total := decimal.Zero
	for i, raw := range res.Value {
		if i >= len(pool.TokensList) {
			break
		}
		pt, ok := store.LoadPoolToken(ac.u, pool.ID, pool.TokensList[i])
		if !ok {
			continue
		}
		pt.Weight = fpmath.ToDecimal(raw, fpmath.ShareDecimals)
		total = total.Add(pt.Weight)
		ac.u.Put(pt)
	}
	pool.TotalWeight = total
	ac.u.Put(pool)
}

func (r *Reducer) applyTokenRateUpdated(ac *applyCtx, evt *event.TokenRateUpdated) error {
	pool, ok := store.LoadPoolByAddress(ac.u, evt.PoolAddress)
	if !ok {
		return unknownPoolAddress(evt.PoolAddress)
	}
	pt, ok := store.LoadPoolToken(ac.u, pool.ID, evt.Token)
	if !ok {
		return fmt.Errorf("%w: pool %s has no token %s", ErrUnknownReference, pool.ID, evt.Token.Hex())
	}

	pt.PriceRate = fpmath.ToDecimal(evt.Rate, fpmath.ShareDecimals)
	ac.u.Put(pt)
	return nil
}

func (r *Reducer) applySwapFeeChanged(ac *applyCtx, evt *event.SwapFeeChanged) error {
	pool, ok := store.LoadPoolByAddress(ac.u, evt.PoolAddress)
	if !ok {
		return unknownPoolAddress(evt.PoolAddress)
	}
	pool.SwapFee = fpmath.ToDecimal(evt.SwapFee, fpmath.ShareDecimals)
	ac.u.Put(pool)
	return nil
}

func (r *Reducer) applyPausedStateChanged(ac *applyCtx, evt *event.PausedStateChanged) error {
	pool, ok := store.LoadPoolByAddress(ac.u, evt.PoolAddress)
	if !ok {
		return unknownPoolAddress(evt.PoolAddress)
	}
	pool.Paused = evt.Paused
	pool.SwapEnabled = !evt.Paused
	ac.u.Put(pool)
	return nil
}

// signalHandler applies one curated signal value and reports whether the
// value was recognized.
type signalHandler func(pool *entity.Pool, value int64) bool

var signalHandlers = map[string]signalHandler{
	event.SignalSwapEnabled: func(pool *entity.Pool, value int64) bool {
		switch value {
		case 0:
			pool.SwapEnabled = false
		case 1:
			pool.SwapEnabled = true
		default:
			return false
		}
		return true
	},
	event.SignalPoolType: func(pool *entity.Pool, value int64) bool {
		pt, ok := entity.PoolTypeAt(value)
		if !ok {
			return false
		}
		pool.PoolType = pt
		pool.Capabilities = entity.CapabilitiesOf(pt)
		return true
	},
}

func (r *Reducer) applyGenericSignal(ac *applyCtx, evt *event.GenericSignal) error {
	handler, ok := signalHandlers[evt.Identifier]
	if !ok {
		r.logger.Debug().Str("identifier", evt.Identifier).Msg("unrecognized signal, ignoring")
		ac.outcome.Ignored = true
		return nil
	}

	poolID := entity.PoolID(evt.PoolID)
	pool, ok := store.LoadPool(ac.u, poolID)
	if !ok {
		return unknownPool(poolID)
	}

	if !handler(pool, evt.Value) {
		r.logger.Debug().
			Str("identifier", evt.Identifier).
			Int64("value", evt.Value).
			Str("pool_id", poolID).
			Msg("signal value out of range, ignoring")
		ac.outcome.Ignored = true
		return nil
	}
	ac.u.Put(pool)
	return nil
}
