package event

import (
	"PoolLedger/internal/entity"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePoolCreated
	EventTypeTokensRegistered
	EventTypePoolBalanceChanged
	EventTypePoolBalanceManaged
	EventTypeInternalBalanceChanged
	EventTypeSwap
	EventTypeShareTransfer
	EventTypeTokenRateUpdated
	EventTypeSwapFeeChanged
	EventTypePausedStateChanged
	EventTypeOracleAnswerUpdated
	EventTypeOracleRegistered
	EventTypeGenericSignal
)

var eventTypeNames = map[EventType]string{
	EventTypePoolCreated:            "PoolCreated",
	EventTypeTokensRegistered:       "TokensRegistered",
	EventTypePoolBalanceChanged:     "PoolBalanceChanged",
	EventTypePoolBalanceManaged:     "PoolBalanceManaged",
	EventTypeInternalBalanceChanged: "InternalBalanceChanged",
	EventTypeSwap:                   "Swap",
	EventTypeShareTransfer:          "ShareTransfer",
	EventTypeTokenRateUpdated:       "TokenRateUpdated",
	EventTypeSwapFeeChanged:         "SwapFeeChanged",
	EventTypePausedStateChanged:     "PausedStateChanged",
	EventTypeOracleAnswerUpdated:    "OracleAnswerUpdated",
	EventTypeOracleRegistered:       "OracleRegistered",
	EventTypeGenericSignal:          "GenericSignal",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// ParseEventType is the inverse of String.
func ParseEventType(name string) EventType {
	for et, n := range eventTypeNames {
		if n == name {
			return et
		}
	}
	return EventTypeUnknown
}

// Meta locates an event in the chain. Every event embeds it.
type Meta struct {
	Block     uint64
	TxHash    common.Hash
	LogIndex  uint
	Timestamp int64 // unix seconds of the block
}

// IdempotencyKey is unique per emitted log.
func (m Meta) IdempotencyKey() string {
	return entity.EventID(m.TxHash, m.LogIndex)
}

func (m Meta) EventMeta() Meta {
	return m
}

// Before reports whether m sorts strictly before other in chain order.
func (m Meta) Before(other Meta) bool {
	if m.Block != other.Block {
		return m.Block < other.Block
	}
	return m.LogIndex < other.LogIndex
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// EventMeta returns the chain position and block time
	EventMeta() Meta
}

// EventEnvelope wraps every applied event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	IdempotencyKey string
	EventType      EventType

	Block    uint64
	LogIndex uint

	// Block time, never wall-clock
	Timestamp time.Time

	// Wire-encoded event, replayed on recovery
	Payload []byte

	// SHA-256 of the change set chained onto PrevHash
	StateHash [32]byte
	PrevHash  [32]byte
}
