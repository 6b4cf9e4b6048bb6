package pool

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/store"
	"fmt"
)

// CheckInvariants validates every entity written by the current event
// before it is committed. Any violation is a structural inconsistency.
func (r *Reducer) CheckInvariants(u *store.UnitOfWork) error {
	for _, e := range u.Written() {
		switch v := e.(type) {
		case *entity.PoolToken:
			if !v.Balance.Equal(v.CashBalance.Add(v.ManagedBalance)) {
				return fmt.Errorf("%w: pool token %s balance %s != cash %s + managed %s",
					ErrInconsistent, v.ID, v.Balance, v.CashBalance, v.ManagedBalance)
			}
			pool, ok := store.LoadPool(u, v.PoolID)
			if !ok {
				return fmt.Errorf("%w: pool token %s references missing pool", ErrInconsistent, v.ID)
			}
			if idx, ok := pool.TokenIndex(v.Token); !ok || idx != v.Index {
				return fmt.Errorf("%w: pool token %s index %d does not match token list", ErrInconsistent, v.ID, v.Index)
			}

		case *entity.PoolShare:
			// the vault's balance is compensated across events and may
			// lag behind until the matching transfer arrives
			if v.User == r.vault {
				continue
			}
			if v.Balance.IsNegative() {
				return fmt.Errorf("%w: pool share %s balance %s is negative", ErrInconsistent, v.ID, v.Balance)
			}

		case *entity.JoinExit:
			pool, ok := store.LoadPool(u, v.PoolID)
			if !ok {
				return fmt.Errorf("%w: join/exit %s references missing pool", ErrInconsistent, v.ID)
			}
			if len(v.Amounts) != len(pool.TokensList) {
				return fmt.Errorf("%w: join/exit %s has %d amounts for %d tokens",
					ErrInconsistent, v.ID, len(v.Amounts), len(pool.TokensList))
			}
		}
	}
	return nil
}
