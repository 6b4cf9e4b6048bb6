package query

import (
	"PoolLedger/internal/entity"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lib/pq"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// QueryService provides read-only access to the persisted entity tables.
// Every response carries as_of_sequence, the last event durably applied
// to the tables it read from.
type QueryService struct {
	db    *sql.DB
	vault common.Address
}

// NewQueryService creates the service. vault is exempt from the
// negative share check, as it is in the engine.
func NewQueryService(db *sql.DB, vault common.Address) *QueryService {
	return &QueryService{db: db, vault: vault}
}

// ParsePoolID validates a 32-byte hex pool id and returns its entity id.
func ParsePoolID(s string) (string, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return "", fmt.Errorf("%w: pool id %q", ErrInvalidArgument, s)
	}
	return entity.PoolID(common.BytesToHash(b)), nil
}

// ParseAddress validates a hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: address %q", ErrInvalidArgument, s)
	}
	return common.HexToAddress(s), nil
}

// GetPool returns a pool and its tokens.
func (qs *QueryService) GetPool(ctx context.Context, poolID string) (*PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	pool, err := getEntity[*entity.Pool](ctx, qs.db, entity.KindPool, poolID)
	if err != nil {
		return nil, err
	}

	tokens, err := listEntities[*entity.PoolToken](ctx, qs.db, entity.KindPoolToken,
		`data->>'pool_id' = $2`, poolID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Index < tokens[j].Index })

	return &PoolResponse{Pool: pool, Tokens: tokens, AsOfSequence: asOfSeq}, nil
}

// ListPools returns pools ordered by id, optionally filtered by pool type.
// Pass the previous page's NextCursor as after to continue.
func (qs *QueryService) ListPools(
	ctx context.Context,
	poolTypes []string,
	after string,
	limit int,
) (*PoolListResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	limit = clampLimit(limit)

	where := []string{"id > $2"}
	args := []interface{}{after}
	argIdx := 3

	if len(poolTypes) > 0 {
		where = append(where, fmt.Sprintf("data->>'pool_type' = ANY($%d)", argIdx))
		args = append(args, pq.Array(poolTypes))
		argIdx++
	}

	// one extra row tells us whether another page exists
	query := strings.Join(where, " AND ") + fmt.Sprintf(" ORDER BY id LIMIT $%d", argIdx)
	args = append(args, limit+1)

	pools, err := listEntities[*entity.Pool](ctx, qs.db, entity.KindPool, query, args...)
	if err != nil {
		return nil, err
	}

	resp := &PoolListResponse{Pools: pools, AsOfSequence: asOfSeq}
	if len(pools) > limit {
		resp.Pools = pools[:limit]
		resp.NextCursor = pools[limit-1].ID
	}
	return resp, nil
}

// GetPoolSnapshots returns a pool's daily snapshots whose day falls in
// [from, to], oldest first. Zero bounds are open.
func (qs *QueryService) GetPoolSnapshots(ctx context.Context, poolID string, from, to int64) (*PoolSnapshotsResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	if to != 0 && from > to {
		return nil, fmt.Errorf("%w: from %d is after to %d", ErrInvalidArgument, from, to)
	}

	query := `data->>'pool_id' = $2 AND (data->>'timestamp')::bigint >= $3`
	args := []interface{}{poolID, entity.DayStart(from)}
	if to != 0 {
		query += ` AND (data->>'timestamp')::bigint <= $4`
		args = append(args, to)
	}

	snaps, err := listEntities[*entity.PoolSnapshot](ctx, qs.db, entity.KindPoolSnapshot, query, args...)
	if err != nil {
		return nil, err
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Timestamp < snaps[j].Timestamp })

	return &PoolSnapshotsResponse{PoolID: poolID, Snapshots: snaps, AsOfSequence: asOfSeq}, nil
}

// GetLatestPrices returns every swap-implied price recorded in a pool.
func (qs *QueryService) GetLatestPrices(ctx context.Context, poolID string) (*LatestPricesResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	prices, err := listEntities[*entity.LatestPrice](ctx, qs.db, entity.KindLatestPrice,
		`data->>'pool_id' = $2 ORDER BY id`, poolID)
	if err != nil {
		return nil, err
	}
	return &LatestPricesResponse{PoolID: poolID, Prices: prices, AsOfSequence: asOfSeq}, nil
}

// GetToken returns one token with its notional, swap count and FX price.
func (qs *QueryService) GetToken(ctx context.Context, addr common.Address) (*TokenResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	token, err := getEntity[*entity.Token](ctx, qs.db, entity.KindToken, entity.AddressID(addr))
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: token, AsOfSequence: asOfSeq}, nil
}

// GetInternalBalances returns a user's vault internal balances.
func (qs *QueryService) GetInternalBalances(ctx context.Context, user common.Address) (*InternalBalancesResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	userID := entity.AddressID(user)
	balances, err := listEntities[*entity.UserInternalBalance](ctx, qs.db, entity.KindUserInternalBalance,
		`id LIKE $2 ORDER BY id`, userID+"-%")
	if err != nil {
		return nil, err
	}
	return &InternalBalancesResponse{User: userID, Balances: balances, AsOfSequence: asOfSeq}, nil
}

// GetProtocol returns the protocol aggregate and its most recent daily
// snapshots, newest first.
func (qs *QueryService) GetProtocol(ctx context.Context, days int) (*ProtocolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	protocol, err := getEntity[*entity.Protocol](ctx, qs.db, entity.KindProtocol, entity.ProtocolID)
	if errors.Is(err, ErrNotFound) {
		protocol = &entity.Protocol{ID: entity.ProtocolID}
	} else if err != nil {
		return nil, err
	}

	snaps, err := listEntities[*entity.ProtocolSnapshot](ctx, qs.db, entity.KindProtocolSnapshot,
		`TRUE ORDER BY (data->>'timestamp')::bigint DESC LIMIT $2`, clampLimit(days))
	if err != nil {
		return nil, err
	}
	return &ProtocolResponse{Protocol: protocol, Snapshots: snaps, AsOfSequence: asOfSeq}, nil
}

// GetEventLogInfo summarizes the durable event log.
func (qs *QueryService) GetEventLogInfo(ctx context.Context) (*EventLogInfo, error) {
	info := &EventLogInfo{LastSequence: -1}

	var (
		hash  []byte
		block sql.NullInt64
	)
	err := qs.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash, block FROM event_log.events
		ORDER BY sequence DESC LIMIT 1
	`).Scan(&info.LastSequence, &hash, &block)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if len(hash) > 0 {
		info.LastStateHash = hexutil.Encode(hash)
	}
	info.LastBlock = uint64(block.Int64)

	if err := qs.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log.events`).Scan(&info.EventCount); err != nil {
		return nil, err
	}
	return info, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the stored entity
// invariants.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	breaks, err := queryColumn[int64](ctx, qs.db, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("hash chain: %w", err)
	}
	report.HashChainBreaks = breaks

	gaps, err := queryColumn[int64](ctx, qs.db, `
		SELECT e1.sequence + 1
		FROM event_log.events e1
		WHERE NOT EXISTS (SELECT 1 FROM event_log.events e2 WHERE e2.sequence = e1.sequence + 1)
		  AND e1.sequence < (SELECT MAX(sequence) FROM event_log.events)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("sequence gaps: %w", err)
	}
	report.SequenceGaps = gaps

	unbalanced, err := queryColumn[string](ctx, qs.db, `
		SELECT id FROM ledger.entities
		WHERE kind = $1
		  AND (data->>'balance')::numeric
		      != (data->>'cash_balance')::numeric + (data->>'managed_balance')::numeric
		ORDER BY id
		LIMIT 10
	`, string(entity.KindPoolToken))
	if err != nil {
		return nil, fmt.Errorf("pool token balances: %w", err)
	}
	report.UnbalancedTokens = unbalanced

	negative, err := queryColumn[string](ctx, qs.db, `
		SELECT id FROM ledger.entities
		WHERE kind = $1
		  AND lower(data->>'user') != $2
		  AND (data->>'balance')::numeric < 0
		ORDER BY id
		LIMIT 10
	`, string(entity.KindPoolShare), entity.AddressID(qs.vault))
	if err != nil {
		return nil, fmt.Errorf("pool shares: %w", err)
	}
	report.NegativeShares = negative

	report.IsHealthy = len(breaks) == 0 && len(gaps) == 0 && len(unbalanced) == 0 && len(negative) == 0
	return report, nil
}

// --- Helpers ---

// getWatermark returns the last persisted sequence. Entities and events
// are written in one transaction, so the tables are consistent with it.
func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), -1) FROM event_log.events
	`).Scan(&seq)
	return seq, err
}

func getEntity[T entity.Entity](ctx context.Context, db *sql.DB, kind entity.Kind, id string) (T, error) {
	var zero T
	var data []byte
	err := db.QueryRowContext(ctx, `
		SELECT data FROM ledger.entities WHERE kind = $1 AND id = $2
	`, string(kind), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	if err != nil {
		return zero, err
	}
	return decodeAs[T](kind, data)
}

// listEntities loads entities of one kind. where is appended after the
// kind filter and may use $2 onwards.
func listEntities[T entity.Entity](ctx context.Context, db *sql.DB, kind entity.Kind, where string, args ...interface{}) ([]T, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT data FROM ledger.entities WHERE kind = $1 AND `+where,
		append([]interface{}{string(kind)}, args...)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		v, err := decodeAs[T](kind, data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func decodeAs[T entity.Entity](kind entity.Kind, data []byte) (T, error) {
	var zero T
	e, err := entity.Decode(kind, data)
	if err != nil {
		return zero, err
	}
	v, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%s decoded as %T", kind, e)
	}
	return v, nil
}

func queryColumn[T any](ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return min(limit, MaxPageSize)
}
