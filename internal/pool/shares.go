package pool

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	fpmath "PoolLedger/internal/math"
	"PoolLedger/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// applyShareTransfer moves pool shares between holders. External mints and
// burns change total shares; derived transfers only move balances.
func (r *Reducer) applyShareTransfer(ac *applyCtx, evt *event.ShareTransfer) error {
	pool, ok := store.LoadPoolByAddress(ac.u, evt.PoolAddress)
	if !ok {
		return unknownPoolAddress(evt.PoolAddress)
	}

	value := fpmath.ToDecimal(evt.Value, fpmath.ShareDecimals)
	isMint := evt.From == (common.Address{})
	isBurn := evt.To == (common.Address{})

	if !evt.Derived {
		if isMint {
			pool.TotalShares = pool.TotalShares.Add(value)
		}
		if isBurn {
			pool.TotalShares = pool.TotalShares.Sub(value)
		}
	}

	if !isMint {
		r.adjustShare(ac, pool, store.GetOrCreatePoolShare(ac.u, pool.ID, evt.From), value.Neg())
	}
	if !isBurn {
		r.adjustShare(ac, pool, store.GetOrCreatePoolShare(ac.u, pool.ID, evt.To), value)
	}

	ac.u.Put(pool)
	ac.requestRefresh(pool.ID)
	return nil
}

// adjustShare applies delta to a holder and keeps the pool's holder count
// in step with zero <-> non-zero balance transitions.
func (r *Reducer) adjustShare(ac *applyCtx, pool *entity.Pool, share *entity.PoolShare, delta decimal.Decimal) {
	wasHolder := !share.Balance.IsZero()
	share.Balance = share.Balance.Add(delta)
	isHolder := !share.Balance.IsZero()

	switch {
	case !wasHolder && isHolder:
		pool.HoldersCount++
	case wasHolder && !isHolder:
		pool.HoldersCount--
	}

	ac.u.Put(share)
	ac.u.Put(pool)
}
