package entity

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Token is a fungible asset tracked anywhere in the system.
type Token struct {
	ID                   string              `json:"id"`
	Address              common.Address      `json:"address"`
	Symbol               string              `json:"symbol"`
	Name                 string              `json:"name"`
	Decimals             int                 `json:"decimals"`
	TotalBalanceNotional decimal.Decimal     `json:"total_balance_notional"`
	TotalSwapCount       int64               `json:"total_swap_count"`
	LatestFXPrice        decimal.NullDecimal `json:"latest_fx_price"`
	FXOracleDecimals     int                 `json:"fx_oracle_decimals"`
	// PoolID is set when the token is itself a pool's share token.
	PoolID string `json:"pool_id,omitempty"`
}

func (t *Token) Kind() Kind       { return KindToken }
func (t *Token) EntityID() string { return t.ID }
func (t *Token) Clone() Entity    { c := *t; return &c }

// Pool is one AMM pool.
type Pool struct {
	ID              string         `json:"id"`
	Address         common.Address `json:"address"`
	PoolType        PoolType       `json:"pool_type"`
	PoolTypeVersion int            `json:"pool_type_version"`
	Capabilities    Capabilities   `json:"capabilities"`
	Specialization  uint16         `json:"specialization"`
	Factory         common.Address `json:"factory"`
	Owner           common.Address `json:"owner"`

	TokensList []common.Address `json:"tokens_list"`

	TotalShares     decimal.Decimal `json:"total_shares"`
	TotalWeight     decimal.Decimal `json:"total_weight"`
	SwapFee         decimal.Decimal `json:"swap_fee"`
	SwapsCount      int64           `json:"swaps_count"`
	HoldersCount    int64           `json:"holders_count"`
	JoinsExitsCount int64           `json:"joins_exits_count"`

	// Amp is stored raw, scaled by the amplification precision.
	Amp                       decimal.Decimal `json:"amp"`
	LastPostJoinExitInvariant decimal.Decimal `json:"last_post_join_exit_invariant"`
	LastJoinExitAmp           decimal.Decimal `json:"last_join_exit_amp"`

	SwapEnabled bool `json:"swap_enabled"`
	Paused      bool `json:"paused"`

	CreateTime   int64  `json:"create_time"`
	CreatedBlock uint64 `json:"created_block"`
}

func (p *Pool) Kind() Kind       { return KindPool }
func (p *Pool) EntityID() string { return p.ID }
func (p *Pool) Clone() Entity {
	c := *p
	c.TokensList = cloneAddresses(p.TokensList)
	return &c
}

// TokenIndex returns the position of token in TokensList.
func (p *Pool) TokenIndex(token common.Address) (int, bool) {
	_, idx, ok := lo.FindIndexOf(p.TokensList, func(a common.Address) bool { return a == token })
	return idx, ok
}

// HoldsOwnShare reports whether the pool's share token is one of its
// registered tokens.
func (p *Pool) HoldsOwnShare() bool {
	return lo.Contains(p.TokensList, p.Address)
}

func (p *Pool) IsComposableStable() bool {
	return p.PoolType == PoolTypeComposableStable
}

// PoolToken is one token's position within one pool.
type PoolToken struct {
	ID             string          `json:"id"`
	PoolID         string          `json:"pool_id"`
	Token          common.Address  `json:"token"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	Decimals       int             `json:"decimals"`
	Index          int             `json:"index"`
	Balance        decimal.Decimal `json:"balance"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	ManagedBalance decimal.Decimal `json:"managed_balance"`
	PriceRate      decimal.Decimal `json:"price_rate"`
	Weight         decimal.Decimal `json:"weight"`
	AssetManager   common.Address  `json:"asset_manager"`
	RateProvider   common.Address  `json:"rate_provider"`

	IsExemptFromYieldProtocolFee bool `json:"is_exempt_from_yield_protocol_fee"`
}

func (pt *PoolToken) Kind() Kind       { return KindPoolToken }
func (pt *PoolToken) EntityID() string { return pt.ID }
func (pt *PoolToken) Clone() Entity    { c := *pt; return &c }

// PoolShare is a liquidity provider's share balance in a pool.
type PoolShare struct {
	ID      string          `json:"id"`
	PoolID  string          `json:"pool_id"`
	User    common.Address  `json:"user"`
	Balance decimal.Decimal `json:"balance"`
}

func (ps *PoolShare) Kind() Kind       { return KindPoolShare }
func (ps *PoolShare) EntityID() string { return ps.ID }
func (ps *PoolShare) Clone() Entity    { c := *ps; return &c }

type User struct {
	ID      string         `json:"id"`
	Address common.Address `json:"address"`
}

func (u *User) Kind() Kind       { return KindUser }
func (u *User) EntityID() string { return u.ID }
func (u *User) Clone() Entity    { c := *u; return &c }

// Swap is one executed swap. Immutable once created.
type Swap struct {
	ID             string          `json:"id"`
	PoolID         string          `json:"pool_id"`
	Caller         common.Address  `json:"caller"`
	TokenIn        common.Address  `json:"token_in"`
	TokenInSymbol  string          `json:"token_in_symbol"`
	TokenAmountIn  decimal.Decimal `json:"token_amount_in"`
	TokenOut       common.Address  `json:"token_out"`
	TokenOutSymbol string          `json:"token_out_symbol"`
	TokenAmountOut decimal.Decimal `json:"token_amount_out"`
	Timestamp      int64           `json:"timestamp"`
	Block          uint64          `json:"block"`
	TxHash         common.Hash     `json:"tx_hash"`
}

func (s *Swap) Kind() Kind       { return KindSwap }
func (s *Swap) EntityID() string { return s.ID }
func (s *Swap) Clone() Entity    { c := *s; return &c }

type JoinExitType string

const (
	JoinExitTypeJoin JoinExitType = "Join"
	JoinExitTypeExit JoinExitType = "Exit"
)

// JoinExit is one liquidity addition or removal. Amounts follow the
// pool's TokensList order.
type JoinExit struct {
	ID        string            `json:"id"`
	Type      JoinExitType      `json:"type"`
	PoolID    string            `json:"pool_id"`
	Sender    common.Address    `json:"sender"`
	Amounts   []decimal.Decimal `json:"amounts"`
	Timestamp int64             `json:"timestamp"`
	Block     uint64            `json:"block"`
	TxHash    common.Hash       `json:"tx_hash"`
}

func (je *JoinExit) Kind() Kind       { return KindJoinExit }
func (je *JoinExit) EntityID() string { return je.ID }
func (je *JoinExit) Clone() Entity {
	c := *je
	c.Amounts = cloneDecimals(je.Amounts)
	return &c
}

// UserInternalBalance is a user's custodial vault balance of one token.
type UserInternalBalance struct {
	ID      string          `json:"id"`
	User    common.Address  `json:"user"`
	Token   common.Address  `json:"token"`
	Balance decimal.Decimal `json:"balance"`
}

func (b *UserInternalBalance) Kind() Kind       { return KindUserInternalBalance }
func (b *UserInternalBalance) EntityID() string { return b.ID }
func (b *UserInternalBalance) Clone() Entity    { c := *b; return &c }

// FXOracle is a price-feed aggregator and the tokens it prices.
type FXOracle struct {
	ID      string           `json:"id"`
	Address common.Address   `json:"address"`
	Tokens  []common.Address `json:"tokens"`
	// Decimals is nil when the oracle never declared its precision.
	Decimals *int                `json:"decimals,omitempty"`
	Divisor  decimal.NullDecimal `json:"divisor"`
}

func (o *FXOracle) Kind() Kind       { return KindFXOracle }
func (o *FXOracle) EntityID() string { return o.ID }
func (o *FXOracle) Clone() Entity {
	c := *o
	c.Tokens = cloneAddresses(o.Tokens)
	if o.Decimals != nil {
		d := *o.Decimals
		c.Decimals = &d
	}
	return &c
}

// AddTokens appends tokens not yet consumed by this oracle.
func (o *FXOracle) AddTokens(tokens ...common.Address) {
	o.Tokens = lo.Uniq(append(o.Tokens, tokens...))
}

// PoolSnapshot is the daily rollup of a pool.
type PoolSnapshot struct {
	ID           string            `json:"id"`
	PoolID       string            `json:"pool_id"`
	Timestamp    int64             `json:"timestamp"`
	Amounts      []decimal.Decimal `json:"amounts"`
	TotalShares  decimal.Decimal   `json:"total_shares"`
	SwapsCount   int64             `json:"swaps_count"`
	HoldersCount int64             `json:"holders_count"`
	Block        uint64            `json:"block"`
}

func (s *PoolSnapshot) Kind() Kind       { return KindPoolSnapshot }
func (s *PoolSnapshot) EntityID() string { return s.ID }
func (s *PoolSnapshot) Clone() Entity {
	c := *s
	c.Amounts = cloneDecimals(s.Amounts)
	return &c
}

// Protocol is the protocol-wide singleton aggregate.
type Protocol struct {
	ID                   string `json:"id"`
	PoolCount            int64  `json:"pool_count"`
	TotalSwapCount       int64  `json:"total_swap_count"`
	TotalLiquidityEvents int64  `json:"total_liquidity_events"`
}

func (p *Protocol) Kind() Kind       { return KindProtocol }
func (p *Protocol) EntityID() string { return p.ID }
func (p *Protocol) Clone() Entity    { c := *p; return &c }

// ProtocolSnapshot is the daily rollup of the protocol aggregate.
type ProtocolSnapshot struct {
	ID                   string `json:"id"`
	Timestamp            int64  `json:"timestamp"`
	PoolCount            int64  `json:"pool_count"`
	TotalSwapCount       int64  `json:"total_swap_count"`
	TotalLiquidityEvents int64  `json:"total_liquidity_events"`
}

func (s *ProtocolSnapshot) Kind() Kind       { return KindProtocolSnapshot }
func (s *ProtocolSnapshot) EntityID() string { return s.ID }
func (s *ProtocolSnapshot) Clone() Entity    { c := *s; return &c }

// PoolContract maps a pool (share token) address back to its pool id.
type PoolContract struct {
	ID     string `json:"id"`
	PoolID string `json:"pool_id"`
}

func (pc *PoolContract) Kind() Kind       { return KindPoolContract }
func (pc *PoolContract) EntityID() string { return pc.ID }
func (pc *PoolContract) Clone() Entity    { c := *pc; return &c }

// LatestPrice is the last swap-implied price of Asset in PricingAsset
// units within one pool.
type LatestPrice struct {
	ID           string          `json:"id"`
	PoolID       string          `json:"pool_id"`
	Asset        common.Address  `json:"asset"`
	PricingAsset common.Address  `json:"pricing_asset"`
	Price        decimal.Decimal `json:"price"`
	Block        uint64          `json:"block"`
}

func (lp *LatestPrice) Kind() Kind       { return KindLatestPrice }
func (lp *LatestPrice) EntityID() string { return lp.ID }
func (lp *LatestPrice) Clone() Entity    { c := *lp; return &c }

type OperationType string

const (
	OperationDeposit  OperationType = "Deposit"
	OperationWithdraw OperationType = "Withdraw"
	OperationUpdate   OperationType = "Update"
)

// ManagementOperation records one asset-manager rebalance.
type ManagementOperation struct {
	ID           string          `json:"id"`
	PoolTokenID  string          `json:"pool_token_id"`
	Type         OperationType   `json:"type"`
	CashDelta    decimal.Decimal `json:"cash_delta"`
	ManagedDelta decimal.Decimal `json:"managed_delta"`
	Timestamp    int64           `json:"timestamp"`
}

func (m *ManagementOperation) Kind() Kind       { return KindManagementOperation }
func (m *ManagementOperation) EntityID() string { return m.ID }
func (m *ManagementOperation) Clone() Entity    { c := *m; return &c }
