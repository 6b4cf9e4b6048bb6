package query

import (
	"PoolLedger/internal/entity"
	"errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// PoolResponse is a pool with its tokens in token-list order.
type PoolResponse struct {
	Pool         *entity.Pool        `json:"pool"`
	Tokens       []*entity.PoolToken `json:"tokens"`
	AsOfSequence int64               `json:"as_of_sequence"`
}

// PoolListResponse is one page of pools ordered by id.
type PoolListResponse struct {
	Pools []*entity.Pool `json:"pools"`
	// NextCursor is empty on the last page.
	NextCursor   string `json:"next_cursor,omitempty"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

type PoolSnapshotsResponse struct {
	PoolID       string                 `json:"pool_id"`
	Snapshots    []*entity.PoolSnapshot `json:"snapshots"`
	AsOfSequence int64                  `json:"as_of_sequence"`
}

type TokenResponse struct {
	Token        *entity.Token `json:"token"`
	AsOfSequence int64         `json:"as_of_sequence"`
}

type InternalBalancesResponse struct {
	User         string                        `json:"user"`
	Balances     []*entity.UserInternalBalance `json:"balances"`
	AsOfSequence int64                         `json:"as_of_sequence"`
}

type LatestPricesResponse struct {
	PoolID       string                `json:"pool_id"`
	Prices       []*entity.LatestPrice `json:"prices"`
	AsOfSequence int64                 `json:"as_of_sequence"`
}

type ProtocolResponse struct {
	Protocol     *entity.Protocol           `json:"protocol"`
	Snapshots    []*entity.ProtocolSnapshot `json:"snapshots"`
	AsOfSequence int64                      `json:"as_of_sequence"`
}

// EventLogInfo summarizes the durable event log.
type EventLogInfo struct {
	LastSequence  int64  `json:"last_sequence"`
	LastStateHash string `json:"last_state_hash,omitempty"`
	LastBlock     uint64 `json:"last_block"`
	EventCount    int64  `json:"event_count"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool     `json:"is_healthy"`
	HashChainBreaks  []int64  `json:"hash_chain_breaks,omitempty"`
	SequenceGaps     []int64  `json:"sequence_gaps,omitempty"`
	UnbalancedTokens []string `json:"unbalanced_tokens,omitempty"`
	NegativeShares   []string `json:"negative_shares,omitempty"`
}
