package event

import (
	"PoolLedger/internal/entity"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolCreated registers a pool and its kind.
type PoolCreated struct {
	Meta
	PoolID          common.Hash
	PoolType        entity.PoolType
	PoolTypeVersion int
	Factory         common.Address
	Owner           common.Address
	SwapFee         *big.Int // 18 decimals
}

func (e *PoolCreated) EventType() EventType { return EventTypePoolCreated }

// TokensRegistered fixes the ordered token list of a pool.
type TokensRegistered struct {
	Meta
	PoolID        common.Hash
	Tokens        []common.Address
	AssetManagers []common.Address
}

func (e *TokensRegistered) EventType() EventType { return EventTypeTokensRegistered }

// PoolBalanceChanged is a join (net positive deltas) or an exit. Deltas and
// ProtocolFeeAmounts are indexed like the pool's token list. Tokens is
// optional; when present it must match the token list.
type PoolBalanceChanged struct {
	Meta
	PoolID             common.Hash
	LiquidityProvider  common.Address
	Tokens             []common.Address
	Deltas             []*big.Int
	ProtocolFeeAmounts []*big.Int
}

func (e *PoolBalanceChanged) EventType() EventType { return EventTypePoolBalanceChanged }

// PoolBalanceManaged is an asset-manager movement between cash and managed.
type PoolBalanceManaged struct {
	Meta
	PoolID       common.Hash
	AssetManager common.Address
	Token        common.Address
	CashDelta    *big.Int
	ManagedDelta *big.Int
}

func (e *PoolBalanceManaged) EventType() EventType { return EventTypePoolBalanceManaged }

type InternalBalanceChanged struct {
	Meta
	User  common.Address
	Token common.Address
	Delta *big.Int
}

func (e *InternalBalanceChanged) EventType() EventType { return EventTypeInternalBalanceChanged }

type Swap struct {
	Meta
	PoolID    common.Hash
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Sender    common.Address
}

func (e *Swap) EventType() EventType { return EventTypeSwap }

// ShareTransfer is a pool share token transfer. Derived transfers are
// injected by the reducer as compensation and never change total shares.
type ShareTransfer struct {
	Meta
	PoolAddress common.Address
	From        common.Address
	To          common.Address
	Value       *big.Int
	Derived     bool
}

func (e *ShareTransfer) EventType() EventType { return EventTypeShareTransfer }

// TokenRateUpdated carries a refreshed 18-decimal price rate.
type TokenRateUpdated struct {
	Meta
	PoolAddress common.Address
	Token       common.Address
	Rate        *big.Int
}

func (e *TokenRateUpdated) EventType() EventType { return EventTypeTokenRateUpdated }

type SwapFeeChanged struct {
	Meta
	PoolAddress common.Address
	SwapFee     *big.Int // 18 decimals
}

func (e *SwapFeeChanged) EventType() EventType { return EventTypeSwapFeeChanged }

type PausedStateChanged struct {
	Meta
	PoolAddress common.Address
	Paused      bool
}

func (e *PausedStateChanged) EventType() EventType { return EventTypePausedStateChanged }

// Known generic signal identifiers.
const (
	SignalSwapEnabled = "setSwapEnabled"
	SignalPoolType    = "setPoolType"
)

// GenericSignal carries a curated out-of-band signal for one pool.
type GenericSignal struct {
	Meta
	Identifier string
	PoolID     common.Hash
	Value      int64
}

func (e *GenericSignal) EventType() EventType { return EventTypeGenericSignal }
