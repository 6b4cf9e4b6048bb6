package store

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/metadata"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func load[T entity.Entity](u *UnitOfWork, kind entity.Kind, id string) (T, bool) {
	var zero T
	e, ok := u.Get(kind, id)
	if !ok {
		return zero, false
	}
	t, ok := e.(T)
	return t, ok
}

// --- Loaders (no creation) ---

func LoadPool(u *UnitOfWork, poolID string) (*entity.Pool, bool) {
	return load[*entity.Pool](u, entity.KindPool, poolID)
}

// LoadPoolByAddress resolves a pool through its share-token address.
func LoadPoolByAddress(u *UnitOfWork, addr common.Address) (*entity.Pool, bool) {
	pc, ok := load[*entity.PoolContract](u, entity.KindPoolContract, entity.AddressID(addr))
	if !ok {
		return nil, false
	}
	return LoadPool(u, pc.PoolID)
}

func LoadPoolToken(u *UnitOfWork, poolID string, token common.Address) (*entity.PoolToken, bool) {
	return load[*entity.PoolToken](u, entity.KindPoolToken, entity.PoolTokenID(poolID, token))
}

func LoadToken(u *UnitOfWork, addr common.Address) (*entity.Token, bool) {
	return load[*entity.Token](u, entity.KindToken, entity.AddressID(addr))
}

func LoadFXOracle(u *UnitOfWork, addr common.Address) (*entity.FXOracle, bool) {
	return load[*entity.FXOracle](u, entity.KindFXOracle, entity.AddressID(addr))
}

func LoadPoolShare(u *UnitOfWork, poolID string, user common.Address) (*entity.PoolShare, bool) {
	return load[*entity.PoolShare](u, entity.KindPoolShare, entity.PoolShareID(poolID, user))
}

// --- Get-or-create ---

func GetOrCreateUser(u *UnitOfWork, addr common.Address) *entity.User {
	id := entity.AddressID(addr)
	if user, ok := load[*entity.User](u, entity.KindUser, id); ok {
		return user
	}
	user := &entity.User{ID: id, Address: addr}
	u.Put(user)
	return user
}

// GetOrCreateToken creates a token on first reference, reading its ERC20
// metadata through the provider. Failed reads fall back to the provider
// defaults.
func GetOrCreateToken(ctx context.Context, u *UnitOfWork, md metadata.Provider, addr common.Address) *entity.Token {
	if token, ok := LoadToken(u, addr); ok {
		return token
	}

	symbol, name, decimals := md.TokenInfo(ctx, addr).Resolved()
	token := &entity.Token{
		ID:                   entity.AddressID(addr),
		Address:              addr,
		Symbol:               symbol,
		Name:                 name,
		Decimals:             decimals,
		TotalBalanceNotional: decimal.Zero,
	}
	if pc, ok := load[*entity.PoolContract](u, entity.KindPoolContract, entity.AddressID(addr)); ok {
		token.PoolID = pc.PoolID
	}
	u.Put(token)
	return token
}

// GetOrCreatePoolToken creates the position of token at index in pool.
// Decimals are copied from the token and never change afterwards.
func GetOrCreatePoolToken(u *UnitOfWork, poolID string, token *entity.Token, index int) *entity.PoolToken {
	if pt, ok := LoadPoolToken(u, poolID, token.Address); ok {
		return pt
	}

	pt := &entity.PoolToken{
		ID:             entity.PoolTokenID(poolID, token.Address),
		PoolID:         poolID,
		Token:          token.Address,
		Symbol:         token.Symbol,
		Name:           token.Name,
		Decimals:       token.Decimals,
		Index:          index,
		Balance:        decimal.Zero,
		CashBalance:    decimal.Zero,
		ManagedBalance: decimal.Zero,
		PriceRate:      decimal.NewFromInt(1),
		Weight:         decimal.Zero,
	}
	u.Put(pt)
	return pt
}

func GetOrCreatePoolShare(u *UnitOfWork, poolID string, user common.Address) *entity.PoolShare {
	if share, ok := LoadPoolShare(u, poolID, user); ok {
		return share
	}
	GetOrCreateUser(u, user)

	share := &entity.PoolShare{
		ID:      entity.PoolShareID(poolID, user),
		PoolID:  poolID,
		User:    user,
		Balance: decimal.Zero,
	}
	u.Put(share)
	return share
}

func GetOrCreateUserInternalBalance(u *UnitOfWork, user, token common.Address) *entity.UserInternalBalance {
	id := entity.UserInternalBalanceID(user, token)
	if b, ok := load[*entity.UserInternalBalance](u, entity.KindUserInternalBalance, id); ok {
		return b
	}
	GetOrCreateUser(u, user)

	b := &entity.UserInternalBalance{
		ID:      id,
		User:    user,
		Token:   token,
		Balance: decimal.Zero,
	}
	u.Put(b)
	return b
}

func GetOrCreateFXOracle(u *UnitOfWork, addr common.Address) *entity.FXOracle {
	if o, ok := LoadFXOracle(u, addr); ok {
		return o
	}
	o := &entity.FXOracle{ID: entity.AddressID(addr), Address: addr}
	u.Put(o)
	return o
}

func GetOrCreateProtocol(u *UnitOfWork) *entity.Protocol {
	if p, ok := load[*entity.Protocol](u, entity.KindProtocol, entity.ProtocolID); ok {
		return p
	}
	p := &entity.Protocol{ID: entity.ProtocolID}
	u.Put(p)
	return p
}

func GetOrCreatePoolSnapshot(u *UnitOfWork, poolID string, day int64) *entity.PoolSnapshot {
	id := entity.PoolSnapshotID(poolID, day)
	if s, ok := load[*entity.PoolSnapshot](u, entity.KindPoolSnapshot, id); ok {
		return s
	}
	s := &entity.PoolSnapshot{ID: id, PoolID: poolID, Timestamp: day}
	u.Put(s)
	return s
}

func GetOrCreateProtocolSnapshot(u *UnitOfWork, day int64) *entity.ProtocolSnapshot {
	id := entity.ProtocolSnapshotID(day)
	if s, ok := load[*entity.ProtocolSnapshot](u, entity.KindProtocolSnapshot, id); ok {
		return s
	}
	s := &entity.ProtocolSnapshot{ID: id, Timestamp: day}
	u.Put(s)
	return s
}

func GetOrCreateLatestPrice(u *UnitOfWork, poolID string, asset, pricingAsset common.Address) *entity.LatestPrice {
	id := entity.LatestPriceID(poolID, asset, pricingAsset)
	if lp, ok := load[*entity.LatestPrice](u, entity.KindLatestPrice, id); ok {
		return lp
	}
	lp := &entity.LatestPrice{
		ID:           id,
		PoolID:       poolID,
		Asset:        asset,
		PricingAsset: pricingAsset,
		Price:        decimal.Zero,
	}
	u.Put(lp)
	return lp
}
