package server

import (
	"PoolLedger/internal/event"
	"PoolLedger/internal/query"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/samber/lo"
	"github.com/sugawarayuuta/sonnet"
	"google.golang.org/grpc/codes"
)

type route struct {
	method   string
	pattern  string
	endpoint string
	handler  jsonHandler
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/v1/pools", "list_pools", s.listPools},
		{http.MethodGet, "/v1/pools/{pool_id}", "get_pool", s.getPool},
		{http.MethodGet, "/v1/pools/{pool_id}/snapshots", "get_pool_snapshots", s.getPoolSnapshots},
		{http.MethodGet, "/v1/pools/{pool_id}/prices", "get_latest_prices", s.getLatestPrices},
		{http.MethodGet, "/v1/tokens/{address}", "get_token", s.getToken},
		{http.MethodGet, "/v1/users/{address}/internal-balances", "get_internal_balances", s.getInternalBalances},
		{http.MethodGet, "/v1/protocol", "get_protocol", s.getProtocol},

		{http.MethodGet, "/v1/admin/status", "admin_status", s.getStatus},
		{http.MethodGet, "/v1/admin/integrity", "admin_integrity", s.verifyIntegrity},
		{http.MethodPost, "/v1/admin/signals", "admin_inject_signal", s.injectSignal},
		{http.MethodPost, "/v1/admin/oracles", "admin_register_oracle", s.registerOracle},
		{http.MethodPost, "/v1/admin/checkpoints", "admin_checkpoint", s.takeCheckpoint},
	}
}

// apiError carries the canonical status code for a failed request.
type apiError struct {
	code codes.Code
	err  error
}

func (e *apiError) Error() string { return e.err.Error() }
func (e *apiError) Unwrap() error { return e.err }

func invalid(format string, args ...interface{}) error {
	return &apiError{code: codes.InvalidArgument, err: fmt.Errorf(format, args...)}
}

type jsonHandler func(r *http.Request, params map[string]string) (interface{}, error)

func (s *Server) instrument(endpoint string, h jsonHandler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()

		resp, err := h(r, params)
		if err != nil {
			code := errorCode(err)
			if code == codes.Internal {
				s.logger.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.QueryErrors.WithLabelValues(endpoint, code.String()).Inc()
			}
			writeJSON(w, runtime.HTTPStatusFromCode(code), map[string]interface{}{
				"code":    code.String(),
				"message": err.Error(),
			})
		} else {
			writeJSON(w, http.StatusOK, resp)
		}

		if s.deps.Metrics != nil {
			s.deps.Metrics.QueryRequests.WithLabelValues(endpoint).Inc()
			s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

func errorCode(err error) codes.Code {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		return ae.code
	case errors.Is(err, query.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, query.ErrInvalidArgument):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	sonnet.NewEncoder(w).Encode(body)
}

func intParam(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, invalid("%s must be a non-negative integer", name)
	}
	return n, nil
}

// ============================================================================
// Query handlers
// ============================================================================

func (s *Server) listPools(r *http.Request, _ map[string]string) (interface{}, error) {
	limit, err := intParam(r, "limit")
	if err != nil {
		return nil, err
	}
	return s.deps.QueryService.ListPools(r.Context(), r.URL.Query()["type"], r.URL.Query().Get("after"), int(limit))
}

func (s *Server) getPool(r *http.Request, params map[string]string) (interface{}, error) {
	poolID, err := query.ParsePoolID(params["pool_id"])
	if err != nil {
		return nil, err
	}
	return s.deps.QueryService.GetPool(r.Context(), poolID)
}

func (s *Server) getPoolSnapshots(r *http.Request, params map[string]string) (interface{}, error) {
	poolID, err := query.ParsePoolID(params["pool_id"])
	if err != nil {
		return nil, err
	}
	from, err := intParam(r, "from")
	if err != nil {
		return nil, err
	}
	to, err := intParam(r, "to")
	if err != nil {
		return nil, err
	}
	return s.deps.QueryService.GetPoolSnapshots(r.Context(), poolID, from, to)
}

func (s *Server) getLatestPrices(r *http.Request, params map[string]string) (interface{}, error) {
	poolID, err := query.ParsePoolID(params["pool_id"])
	if err != nil {
		return nil, err
	}
	return s.deps.QueryService.GetLatestPrices(r.Context(), poolID)
}

func (s *Server) getToken(r *http.Request, params map[string]string) (interface{}, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	return s.deps.QueryService.GetToken(r.Context(), addr)
}

func (s *Server) getInternalBalances(r *http.Request, params map[string]string) (interface{}, error) {
	addr, err := query.ParseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	return s.deps.QueryService.GetInternalBalances(r.Context(), addr)
}

func (s *Server) getProtocol(r *http.Request, _ map[string]string) (interface{}, error) {
	days, err := intParam(r, "days")
	if err != nil {
		return nil, err
	}
	return s.deps.QueryService.GetProtocol(r.Context(), int(days))
}

// ============================================================================
// Admin handlers
// ============================================================================

type statusResponse struct {
	EngineSequence  int64               `json:"engine_sequence"`
	EngineStateHash string              `json:"engine_state_hash"`
	EventLog        *query.EventLogInfo `json:"event_log"`
}

func (s *Server) getStatus(r *http.Request, _ map[string]string) (interface{}, error) {
	info, err := s.deps.QueryService.GetEventLogInfo(r.Context())
	if err != nil {
		return nil, err
	}
	resp := &statusResponse{EventLog: info, EngineSequence: -1}
	if s.deps.Engine != nil {
		hash := s.deps.Engine.GetStateHash()
		resp.EngineSequence = s.deps.Engine.GetSequence()
		resp.EngineStateHash = hexutil.Encode(hash[:])
	}
	return resp, nil
}

func (s *Server) verifyIntegrity(r *http.Request, _ map[string]string) (interface{}, error) {
	return s.deps.QueryService.VerifyIntegrity(r.Context())
}

func (s *Server) takeCheckpoint(r *http.Request, _ map[string]string) (interface{}, error) {
	if s.deps.Checkpoint == nil {
		return nil, &apiError{code: codes.Unimplemented, err: errors.New("checkpoints are disabled")}
	}
	seq, err := s.deps.Checkpoint(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]int64{"sequence": seq}, nil
}

// chainPosition is where an injected event sits in chain order.
type chainPosition struct {
	Block     uint64 `json:"block"`
	TxHash    string `json:"tx_hash"`
	LogIndex  uint   `json:"log_index"`
	Timestamp int64  `json:"timestamp"`
}

func (p chainPosition) meta() (event.Meta, error) {
	b, err := hexutil.Decode(p.TxHash)
	if err != nil || len(b) != common.HashLength {
		return event.Meta{}, invalid("tx_hash %q is not a 32-byte hex hash", p.TxHash)
	}
	return event.Meta{
		Block:     p.Block,
		TxHash:    common.BytesToHash(b),
		LogIndex:  p.LogIndex,
		Timestamp: p.Timestamp,
	}, nil
}

type signalRequest struct {
	chainPosition
	Identifier string `json:"identifier"`
	PoolID     string `json:"pool_id"`
	Value      int64  `json:"value"`
}

func (s *Server) injectSignal(r *http.Request, _ map[string]string) (interface{}, error) {
	var req signalRequest
	if err := sonnet.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, invalid("decode body: %v", err)
	}
	meta, err := req.meta()
	if err != nil {
		return nil, err
	}
	poolID, err := hexutil.Decode(req.PoolID)
	if err != nil || len(poolID) != common.HashLength {
		return nil, invalid("pool_id %q is not a 32-byte hex id", req.PoolID)
	}

	if err := s.deps.IngestService.InjectSignal(r.Context(), meta, req.Identifier, common.BytesToHash(poolID), req.Value); err != nil {
		return nil, &apiError{code: codes.InvalidArgument, err: err}
	}
	return map[string]bool{"accepted": true}, nil
}

type oracleRequest struct {
	chainPosition
	Aggregator string   `json:"aggregator"`
	Tokens     []string `json:"tokens"`
	Decimals   *int     `json:"decimals,omitempty"`
	Divisor    string   `json:"divisor,omitempty"`
}

func (s *Server) registerOracle(r *http.Request, _ map[string]string) (interface{}, error) {
	var req oracleRequest
	if err := sonnet.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, invalid("decode body: %v", err)
	}
	meta, err := req.meta()
	if err != nil {
		return nil, err
	}
	aggregator, err := query.ParseAddress(req.Aggregator)
	if err != nil {
		return nil, err
	}

	bad, hasBad := lo.Find(req.Tokens, func(t string) bool { return !common.IsHexAddress(t) })
	if hasBad {
		return nil, invalid("token %q is not a hex address", bad)
	}
	tokens := lo.Map(req.Tokens, func(t string, _ int) common.Address { return common.HexToAddress(t) })

	var divisor *big.Int
	if req.Divisor != "" {
		d, ok := new(big.Int).SetString(req.Divisor, 10)
		if !ok {
			return nil, invalid("divisor %q is not an integer", req.Divisor)
		}
		divisor = d
	}

	if err := s.deps.IngestService.InjectOracleRegistration(r.Context(), meta, aggregator, tokens, req.Decimals, divisor); err != nil {
		return nil, &apiError{code: codes.InvalidArgument, err: err}
	}
	return map[string]bool{"accepted": true}, nil
}
