package ingestion

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sugawarayuuta/sonnet"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a typed event.Event.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	return ParseEvent(eventType, raw.Data)
}

// ParseEvent decodes one wire payload. Amounts travel as base-10 strings
// so 256-bit values survive JSON untouched.
func ParseEvent(eventType string, data []byte) (event.Event, error) {
	switch event.ParseEventType(eventType) {
	case event.EventTypePoolCreated:
		return parsePoolCreated(data)
	case event.EventTypeTokensRegistered:
		return parseTokensRegistered(data)
	case event.EventTypePoolBalanceChanged:
		return parsePoolBalanceChanged(data)
	case event.EventTypePoolBalanceManaged:
		return parsePoolBalanceManaged(data)
	case event.EventTypeInternalBalanceChanged:
		return parseInternalBalanceChanged(data)
	case event.EventTypeSwap:
		return parseSwap(data)
	case event.EventTypeShareTransfer:
		return parseShareTransfer(data)
	case event.EventTypeTokenRateUpdated:
		return parseTokenRateUpdated(data)
	case event.EventTypeSwapFeeChanged:
		return parseSwapFeeChanged(data)
	case event.EventTypePausedStateChanged:
		return parsePausedStateChanged(data)
	case event.EventTypeOracleAnswerUpdated:
		return parseOracleAnswerUpdated(data)
	case event.EventTypeOracleRegistered:
		return parseOracleRegistered(data)
	case event.EventTypeGenericSignal:
		return parseGenericSignal(data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// EncodeEvent is the inverse of ParseEvent. The event log stores this form
// and replays it through ParseEvent on recovery.
func EncodeEvent(evt event.Event) ([]byte, error) {
	var v any
	switch e := evt.(type) {
	case *event.PoolCreated:
		v = poolCreatedJSON{
			metaJSON:        encodeMeta(e.Meta),
			PoolID:          e.PoolID.Hex(),
			PoolType:        string(e.PoolType),
			PoolTypeVersion: e.PoolTypeVersion,
			Factory:         e.Factory.Hex(),
			Owner:           e.Owner.Hex(),
			SwapFee:         formatBig(e.SwapFee),
		}
	case *event.TokensRegistered:
		v = tokensRegisteredJSON{
			metaJSON:      encodeMeta(e.Meta),
			PoolID:        e.PoolID.Hex(),
			Tokens:        formatAddresses(e.Tokens),
			AssetManagers: formatAddresses(e.AssetManagers),
		}
	case *event.PoolBalanceChanged:
		v = poolBalanceChangedJSON{
			metaJSON:           encodeMeta(e.Meta),
			PoolID:             e.PoolID.Hex(),
			LiquidityProvider:  e.LiquidityProvider.Hex(),
			Tokens:             formatAddresses(e.Tokens),
			Deltas:             formatBigs(e.Deltas),
			ProtocolFeeAmounts: formatBigs(e.ProtocolFeeAmounts),
		}
	case *event.PoolBalanceManaged:
		v = poolBalanceManagedJSON{
			metaJSON:     encodeMeta(e.Meta),
			PoolID:       e.PoolID.Hex(),
			AssetManager: e.AssetManager.Hex(),
			Token:        e.Token.Hex(),
			CashDelta:    formatBig(e.CashDelta),
			ManagedDelta: formatBig(e.ManagedDelta),
		}
	case *event.InternalBalanceChanged:
		v = internalBalanceChangedJSON{
			metaJSON: encodeMeta(e.Meta),
			User:     e.User.Hex(),
			Token:    e.Token.Hex(),
			Delta:    formatBig(e.Delta),
		}
	case *event.Swap:
		v = swapJSON{
			metaJSON:  encodeMeta(e.Meta),
			PoolID:    e.PoolID.Hex(),
			TokenIn:   e.TokenIn.Hex(),
			TokenOut:  e.TokenOut.Hex(),
			AmountIn:  formatBig(e.AmountIn),
			AmountOut: formatBig(e.AmountOut),
			Sender:    e.Sender.Hex(),
		}
	case *event.ShareTransfer:
		if e.Derived {
			return nil, fmt.Errorf("derived transfers are internal and have no wire form")
		}
		v = shareTransferJSON{
			metaJSON:    encodeMeta(e.Meta),
			PoolAddress: e.PoolAddress.Hex(),
			From:        e.From.Hex(),
			To:          e.To.Hex(),
			Value:       formatBig(e.Value),
		}
	case *event.TokenRateUpdated:
		v = tokenRateUpdatedJSON{
			metaJSON:    encodeMeta(e.Meta),
			PoolAddress: e.PoolAddress.Hex(),
			Token:       e.Token.Hex(),
			Rate:        formatBig(e.Rate),
		}
	case *event.SwapFeeChanged:
		v = swapFeeChangedJSON{
			metaJSON:    encodeMeta(e.Meta),
			PoolAddress: e.PoolAddress.Hex(),
			SwapFee:     formatBig(e.SwapFee),
		}
	case *event.PausedStateChanged:
		v = pausedStateChangedJSON{
			metaJSON:    encodeMeta(e.Meta),
			PoolAddress: e.PoolAddress.Hex(),
			Paused:      e.Paused,
		}
	case *event.OracleAnswerUpdated:
		v = oracleAnswerUpdatedJSON{
			metaJSON:   encodeMeta(e.Meta),
			Aggregator: e.Aggregator.Hex(),
			Answer:     formatBig(e.Answer),
		}
	case *event.OracleRegistered:
		j := oracleRegisteredJSON{
			metaJSON:   encodeMeta(e.Meta),
			Aggregator: e.Aggregator.Hex(),
			Tokens:     formatAddresses(e.Tokens),
			Decimals:   e.Decimals,
		}
		if e.Divisor != nil {
			j.Divisor = formatBig(e.Divisor)
		}
		v = j
	case *event.GenericSignal:
		v = genericSignalJSON{
			metaJSON:   encodeMeta(e.Meta),
			Identifier: e.Identifier,
			PoolID:     e.PoolID.Hex(),
			Value:      e.Value,
		}
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
	return sonnet.Marshal(v)
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type metaJSON struct {
	Block     uint64 `json:"block"`
	TxHash    string `json:"tx_hash"`
	LogIndex  uint   `json:"log_index"`
	Timestamp int64  `json:"timestamp"`
}

func encodeMeta(m event.Meta) metaJSON {
	return metaJSON{Block: m.Block, TxHash: m.TxHash.Hex(), LogIndex: m.LogIndex, Timestamp: m.Timestamp}
}

func (p *fieldParser) meta(j metaJSON) event.Meta {
	return event.Meta{
		Block:     j.Block,
		TxHash:    p.hash("tx_hash", j.TxHash),
		LogIndex:  j.LogIndex,
		Timestamp: j.Timestamp,
	}
}

type poolCreatedJSON struct {
	metaJSON
	PoolID          string `json:"pool_id"`
	PoolType        string `json:"pool_type"`
	PoolTypeVersion int    `json:"pool_type_version"`
	Factory         string `json:"factory"`
	Owner           string `json:"owner"`
	SwapFee         string `json:"swap_fee"`
}

func parsePoolCreated(data []byte) (*event.PoolCreated, error) {
	var j poolCreatedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolCreated: %w", err)
	}
	var p fieldParser
	evt := &event.PoolCreated{
		Meta:            p.meta(j.metaJSON),
		PoolID:          p.hash("pool_id", j.PoolID),
		PoolType:        p.poolType("pool_type", j.PoolType),
		PoolTypeVersion: j.PoolTypeVersion,
		Factory:         p.optionalAddress("factory", j.Factory),
		Owner:           p.optionalAddress("owner", j.Owner),
		SwapFee:         p.optionalBig("swap_fee", j.SwapFee),
	}
	return evt, p.wrap("PoolCreated")
}

type tokensRegisteredJSON struct {
	metaJSON
	PoolID        string   `json:"pool_id"`
	Tokens        []string `json:"tokens"`
	AssetManagers []string `json:"asset_managers,omitempty"`
}

func parseTokensRegistered(data []byte) (*event.TokensRegistered, error) {
	var j tokensRegisteredJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TokensRegistered: %w", err)
	}
	var p fieldParser
	evt := &event.TokensRegistered{
		Meta:          p.meta(j.metaJSON),
		PoolID:        p.hash("pool_id", j.PoolID),
		Tokens:        p.addresses("tokens", j.Tokens),
		AssetManagers: p.addresses("asset_managers", j.AssetManagers),
	}
	return evt, p.wrap("TokensRegistered")
}

type poolBalanceChangedJSON struct {
	metaJSON
	PoolID             string   `json:"pool_id"`
	LiquidityProvider  string   `json:"liquidity_provider"`
	Tokens             []string `json:"tokens,omitempty"`
	Deltas             []string `json:"deltas"`
	ProtocolFeeAmounts []string `json:"protocol_fee_amounts,omitempty"`
}

func parsePoolBalanceChanged(data []byte) (*event.PoolBalanceChanged, error) {
	var j poolBalanceChangedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolBalanceChanged: %w", err)
	}
	var p fieldParser
	evt := &event.PoolBalanceChanged{
		Meta:               p.meta(j.metaJSON),
		PoolID:             p.hash("pool_id", j.PoolID),
		LiquidityProvider:  p.address("liquidity_provider", j.LiquidityProvider),
		Tokens:             p.addresses("tokens", j.Tokens),
		Deltas:             p.bigs("deltas", j.Deltas),
		ProtocolFeeAmounts: p.bigs("protocol_fee_amounts", j.ProtocolFeeAmounts),
	}
	return evt, p.wrap("PoolBalanceChanged")
}

type poolBalanceManagedJSON struct {
	metaJSON
	PoolID       string `json:"pool_id"`
	AssetManager string `json:"asset_manager"`
	Token        string `json:"token"`
	CashDelta    string `json:"cash_delta"`
	ManagedDelta string `json:"managed_delta"`
}

func parsePoolBalanceManaged(data []byte) (*event.PoolBalanceManaged, error) {
	var j poolBalanceManagedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolBalanceManaged: %w", err)
	}
	var p fieldParser
	evt := &event.PoolBalanceManaged{
		Meta:         p.meta(j.metaJSON),
		PoolID:       p.hash("pool_id", j.PoolID),
		AssetManager: p.optionalAddress("asset_manager", j.AssetManager),
		Token:        p.address("token", j.Token),
		CashDelta:    p.bigInt("cash_delta", j.CashDelta),
		ManagedDelta: p.bigInt("managed_delta", j.ManagedDelta),
	}
	return evt, p.wrap("PoolBalanceManaged")
}

type internalBalanceChangedJSON struct {
	metaJSON
	User  string `json:"user"`
	Token string `json:"token"`
	Delta string `json:"delta"`
}

func parseInternalBalanceChanged(data []byte) (*event.InternalBalanceChanged, error) {
	var j internalBalanceChangedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InternalBalanceChanged: %w", err)
	}
	var p fieldParser
	evt := &event.InternalBalanceChanged{
		Meta:  p.meta(j.metaJSON),
		User:  p.address("user", j.User),
		Token: p.address("token", j.Token),
		Delta: p.bigInt("delta", j.Delta),
	}
	return evt, p.wrap("InternalBalanceChanged")
}

type swapJSON struct {
	metaJSON
	PoolID    string `json:"pool_id"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Sender    string `json:"sender,omitempty"`
}

func parseSwap(data []byte) (*event.Swap, error) {
	var j swapJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Swap: %w", err)
	}
	var p fieldParser
	evt := &event.Swap{
		Meta:      p.meta(j.metaJSON),
		PoolID:    p.hash("pool_id", j.PoolID),
		TokenIn:   p.address("token_in", j.TokenIn),
		TokenOut:  p.address("token_out", j.TokenOut),
		AmountIn:  p.bigInt("amount_in", j.AmountIn),
		AmountOut: p.bigInt("amount_out", j.AmountOut),
		Sender:    p.optionalAddress("sender", j.Sender),
	}
	return evt, p.wrap("Swap")
}

type shareTransferJSON struct {
	metaJSON
	PoolAddress string `json:"pool_address"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

func parseShareTransfer(data []byte) (*event.ShareTransfer, error) {
	var j shareTransferJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ShareTransfer: %w", err)
	}
	var p fieldParser
	evt := &event.ShareTransfer{
		Meta:        p.meta(j.metaJSON),
		PoolAddress: p.address("pool_address", j.PoolAddress),
		From:        p.address("from", j.From),
		To:          p.address("to", j.To),
		Value:       p.bigInt("value", j.Value),
	}
	return evt, p.wrap("ShareTransfer")
}

type tokenRateUpdatedJSON struct {
	metaJSON
	PoolAddress string `json:"pool_address"`
	Token       string `json:"token"`
	Rate        string `json:"rate"`
}

func parseTokenRateUpdated(data []byte) (*event.TokenRateUpdated, error) {
	var j tokenRateUpdatedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TokenRateUpdated: %w", err)
	}
	var p fieldParser
	evt := &event.TokenRateUpdated{
		Meta:        p.meta(j.metaJSON),
		PoolAddress: p.address("pool_address", j.PoolAddress),
		Token:       p.address("token", j.Token),
		Rate:        p.bigInt("rate", j.Rate),
	}
	return evt, p.wrap("TokenRateUpdated")
}

type swapFeeChangedJSON struct {
	metaJSON
	PoolAddress string `json:"pool_address"`
	SwapFee     string `json:"swap_fee"`
}

func parseSwapFeeChanged(data []byte) (*event.SwapFeeChanged, error) {
	var j swapFeeChangedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SwapFeeChanged: %w", err)
	}
	var p fieldParser
	evt := &event.SwapFeeChanged{
		Meta:        p.meta(j.metaJSON),
		PoolAddress: p.address("pool_address", j.PoolAddress),
		SwapFee:     p.bigInt("swap_fee", j.SwapFee),
	}
	return evt, p.wrap("SwapFeeChanged")
}

type pausedStateChangedJSON struct {
	metaJSON
	PoolAddress string `json:"pool_address"`
	Paused      bool   `json:"paused"`
}

func parsePausedStateChanged(data []byte) (*event.PausedStateChanged, error) {
	var j pausedStateChangedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PausedStateChanged: %w", err)
	}
	var p fieldParser
	evt := &event.PausedStateChanged{
		Meta:        p.meta(j.metaJSON),
		PoolAddress: p.address("pool_address", j.PoolAddress),
		Paused:      j.Paused,
	}
	return evt, p.wrap("PausedStateChanged")
}

type oracleAnswerUpdatedJSON struct {
	metaJSON
	Aggregator string `json:"aggregator"`
	Answer     string `json:"answer"`
}

func parseOracleAnswerUpdated(data []byte) (*event.OracleAnswerUpdated, error) {
	var j oracleAnswerUpdatedJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OracleAnswerUpdated: %w", err)
	}
	var p fieldParser
	evt := &event.OracleAnswerUpdated{
		Meta:       p.meta(j.metaJSON),
		Aggregator: p.address("aggregator", j.Aggregator),
		Answer:     p.bigInt("answer", j.Answer),
	}
	return evt, p.wrap("OracleAnswerUpdated")
}

type oracleRegisteredJSON struct {
	metaJSON
	Aggregator string   `json:"aggregator"`
	Tokens     []string `json:"tokens"`
	Decimals   *int     `json:"decimals,omitempty"`
	Divisor    string   `json:"divisor,omitempty"`
}

func parseOracleRegistered(data []byte) (*event.OracleRegistered, error) {
	var j oracleRegisteredJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OracleRegistered: %w", err)
	}
	var p fieldParser
	evt := &event.OracleRegistered{
		Meta:       p.meta(j.metaJSON),
		Aggregator: p.address("aggregator", j.Aggregator),
		Tokens:     p.addresses("tokens", j.Tokens),
		Decimals:   j.Decimals,
	}
	if j.Divisor != "" {
		evt.Divisor = p.bigInt("divisor", j.Divisor)
	}
	return evt, p.wrap("OracleRegistered")
}

type genericSignalJSON struct {
	metaJSON
	Identifier string `json:"identifier"`
	PoolID     string `json:"pool_id"`
	Value      int64  `json:"value"`
}

func parseGenericSignal(data []byte) (*event.GenericSignal, error) {
	var j genericSignalJSON
	if err := sonnet.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GenericSignal: %w", err)
	}
	var p fieldParser
	evt := &event.GenericSignal{
		Meta:       p.meta(j.metaJSON),
		Identifier: j.Identifier,
		PoolID:     p.hash("pool_id", j.PoolID),
		Value:      j.Value,
	}
	return evt, p.wrap("GenericSignal")
}

// --- field helpers ---

// fieldParser keeps the first field error so a parse function can convert
// every field in one expression and check once.
type fieldParser struct {
	err error
}

func (p *fieldParser) fail(field, value, what string) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %q is not %s", field, value, what)
	}
}

func (p *fieldParser) wrap(eventType string) error {
	if p.err != nil {
		return fmt.Errorf("parse %s: %w", eventType, p.err)
	}
	return nil
}

func (p *fieldParser) hash(field, s string) common.Hash {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		p.fail(field, s, "a 32-byte hex hash")
		return common.Hash{}
	}
	return common.BytesToHash(b)
}

func (p *fieldParser) poolType(field, s string) entity.PoolType {
	pt, err := entity.ParsePoolType(s)
	if err != nil {
		p.fail(field, s, "a known pool type")
	}
	return pt
}

func (p *fieldParser) address(field, s string) common.Address {
	if !common.IsHexAddress(s) {
		p.fail(field, s, "a hex address")
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func (p *fieldParser) optionalAddress(field, s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return p.address(field, s)
}

func (p *fieldParser) addresses(field string, ss []string) []common.Address {
	if len(ss) == 0 {
		return nil
	}
	out := make([]common.Address, len(ss))
	for i, s := range ss {
		out[i] = p.address(fmt.Sprintf("%s[%d]", field, i), s)
	}
	return out
}

func (p *fieldParser) bigInt(field, s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		p.fail(field, s, "a base-10 integer")
		return new(big.Int)
	}
	return v
}

func (p *fieldParser) optionalBig(field, s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	return p.bigInt(field, s)
}

func (p *fieldParser) bigs(field string, ss []string) []*big.Int {
	if len(ss) == 0 {
		return nil
	}
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		out[i] = p.bigInt(fmt.Sprintf("%s[%d]", field, i), s)
	}
	return out
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatBigs(vs []*big.Int) []string {
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = formatBig(v)
	}
	return out
}

func formatAddresses(as []common.Address) []string {
	if len(as) == 0 {
		return nil
	}
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Hex()
	}
	return out
}
