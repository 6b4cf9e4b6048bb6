package snapshot

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/store"
	"fmt"

	"github.com/shopspring/decimal"
)

// RefreshPool upserts the daily snapshot of a pool from its live state.
// Amounts are the current balances in token-list order, so refreshing
// twice in one day keeps only the latest values.
func RefreshPool(u *store.UnitOfWork, poolID string, block uint64, timestamp int64) (*entity.PoolSnapshot, error) {
	pool, ok := store.LoadPool(u, poolID)
	if !ok {
		return nil, fmt.Errorf("snapshot: pool %s not found", poolID)
	}

	amounts := make([]decimal.Decimal, len(pool.TokensList))
	for i, token := range pool.TokensList {
		pt, ok := store.LoadPoolToken(u, poolID, token)
		if !ok {
			return nil, fmt.Errorf("snapshot: pool %s has no pool token for %s", poolID, token.Hex())
		}
		amounts[i] = pt.Balance
	}

	snap := store.GetOrCreatePoolSnapshot(u, poolID, entity.DayStart(timestamp))
	snap.Amounts = amounts
	snap.TotalShares = pool.TotalShares
	snap.SwapsCount = pool.SwapsCount
	snap.HoldersCount = pool.HoldersCount
	snap.Block = block
	u.Put(snap)

	RefreshProtocol(u, timestamp)
	return snap, nil
}

// RefreshProtocol upserts the daily protocol snapshot.
func RefreshProtocol(u *store.UnitOfWork, timestamp int64) *entity.ProtocolSnapshot {
	protocol := store.GetOrCreateProtocol(u)

	snap := store.GetOrCreateProtocolSnapshot(u, entity.DayStart(timestamp))
	snap.PoolCount = protocol.PoolCount
	snap.TotalSwapCount = protocol.TotalSwapCount
	snap.TotalLiquidityEvents = protocol.TotalLiquidityEvents
	u.Put(snap)
	return snap
}
