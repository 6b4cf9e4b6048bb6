package entity

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Kind names an entity table.
type Kind string

const (
	KindToken               Kind = "token"
	KindPool                Kind = "pool"
	KindPoolToken           Kind = "pool_token"
	KindPoolShare           Kind = "pool_share"
	KindUser                Kind = "user"
	KindSwap                Kind = "swap"
	KindJoinExit            Kind = "join_exit"
	KindUserInternalBalance Kind = "user_internal_balance"
	KindFXOracle            Kind = "fx_oracle"
	KindPoolSnapshot        Kind = "pool_snapshot"
	KindProtocol            Kind = "protocol"
	KindPoolContract        Kind = "pool_contract"
	KindLatestPrice         Kind = "latest_price"
	KindManagementOperation Kind = "management_operation"
	KindProtocolSnapshot    Kind = "protocol_snapshot"
)

// Entity is implemented by every stored record. Entities reference each
// other by id only, so Clone never has to follow pointers into other
// entities.
type Entity interface {
	Kind() Kind
	EntityID() string
	Clone() Entity
}

// Key addresses one entity in the store.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

func KeyOf(e Entity) Key {
	return Key{Kind: e.Kind(), ID: e.EntityID()}
}

// ProtocolID is the id of the protocol-wide singleton aggregate.
const ProtocolID = "protocol"

// SecondsPerDay aligns snapshot timestamps.
const SecondsPerDay = 86400

// --- Identifier derivation ---

func AddressID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func PoolID(poolID common.Hash) string {
	return poolID.Hex()
}

// PoolAddress returns the pool contract address embedded in the first
// 20 bytes of a pool id.
func PoolAddress(poolID common.Hash) common.Address {
	return common.BytesToAddress(poolID[:common.AddressLength])
}

// PoolSpecialization returns the two-byte specialization discriminant
// embedded after the pool address.
func PoolSpecialization(poolID common.Hash) uint16 {
	return uint16(poolID[20])<<8 | uint16(poolID[21])
}

func PoolTokenID(poolID string, token common.Address) string {
	return poolID + "-" + AddressID(token)
}

func PoolShareID(poolID string, user common.Address) string {
	return poolID + "-" + AddressID(user)
}

func UserInternalBalanceID(user, token common.Address) string {
	return AddressID(user) + "-" + AddressID(token)
}

// EventID identifies a record created by exactly one log.
func EventID(tx common.Hash, logIndex uint) string {
	return tx.Hex() + "-" + strconv.FormatUint(uint64(logIndex), 10)
}

func LatestPriceID(poolID string, asset, pricingAsset common.Address) string {
	return poolID + "-" + AddressID(asset) + "-" + AddressID(pricingAsset)
}

// DayStart truncates a unix timestamp to its UTC calendar day.
func DayStart(ts int64) int64 {
	return ts - ts%SecondsPerDay
}

func PoolSnapshotID(poolID string, day int64) string {
	return poolID + "-" + strconv.FormatInt(day, 10)
}

func ProtocolSnapshotID(day int64) string {
	return ProtocolID + "-" + strconv.FormatInt(day, 10)
}

func cloneDecimals(in []decimal.Decimal) []decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make([]decimal.Decimal, len(in))
	copy(out, in)
	return out
}

func cloneAddresses(in []common.Address) []common.Address {
	if in == nil {
		return nil
	}
	out := make([]common.Address, len(in))
	copy(out, in)
	return out
}
