package pricing

import (
	"PoolLedger/internal/entity"
	"PoolLedger/internal/event"
	fpmath "PoolLedger/internal/math"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/store"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DefaultOracleDecimals is assumed for aggregators that never declared
// their precision.
const DefaultOracleDecimals = 8

// TroyOunceInGrams is 31.1034768 as an 8-decimal fixed-point integer.
var TroyOunceInGrams = big.NewInt(3_110_347_680)

// Normalizer turns oracle answers into per-token FX prices.
type Normalizer struct {
	// static aggregator -> consuming tokens allow-list
	aggregators map[common.Address][]common.Address
	// token priced per troy ounce that is tracked per gram
	xau common.Address

	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewNormalizer(aggregators map[common.Address][]common.Address, xau common.Address, metrics *observability.Metrics, logger zerolog.Logger) *Normalizer {
	if aggregators == nil {
		aggregators = map[common.Address][]common.Address{}
	}
	return &Normalizer{
		aggregators: aggregators,
		xau:         xau,
		metrics:     metrics,
		logger:      logger,
	}
}

// Consumers returns the tokens priced by aggregator: the static allow-list
// and the registered oracle tokens, deduplicated in that order.
func (n *Normalizer) Consumers(oracle *entity.FXOracle, aggregator common.Address) []common.Address {
	tokens := append([]common.Address{}, n.aggregators[aggregator]...)
	if oracle != nil {
		tokens = append(tokens, oracle.Tokens...)
	}
	return lo.Uniq(tokens)
}

// Normalize converts a raw answer into a decimal price for token.
func (n *Normalizer) Normalize(token common.Address, answer *big.Int, oracle *entity.FXOracle) decimal.Decimal {
	if answer == nil {
		return decimal.Zero
	}

	if n.xau != (common.Address{}) && token == n.xau {
		perGram := new(big.Int).Mul(answer, fpmath.Pow10(fpmath.OracleDecimals))
		perGram.Quo(perGram, TroyOunceInGrams)
		return fpmath.ToDecimal(perGram, fpmath.OracleDecimals)
	}

	if oracle != nil && oracle.Decimals != nil && oracle.Divisor.Valid && !oracle.Divisor.Decimal.IsZero() {
		scaled := new(big.Int).Mul(answer, fpmath.Pow10(*oracle.Decimals))
		scaled.Quo(scaled, oracle.Divisor.Decimal.BigInt())
		return fpmath.ToDecimal(scaled, fpmath.OracleDecimals)
	}

	return fpmath.ToDecimal(answer, fpmath.OracleDecimals)
}

// HandleAnswerUpdated writes the normalized answer to every consuming
// token. Unknown tokens are skipped. Returns the number of tokens updated.
func (n *Normalizer) HandleAnswerUpdated(u *store.UnitOfWork, evt *event.OracleAnswerUpdated) int {
	oracle, _ := store.LoadFXOracle(u, evt.Aggregator)

	decimals := DefaultOracleDecimals
	if oracle != nil && oracle.Decimals != nil {
		decimals = *oracle.Decimals
	}

	updated := 0
	for _, addr := range n.Consumers(oracle, evt.Aggregator) {
		token, ok := store.LoadToken(u, addr)
		if !ok {
			n.logger.Warn().
				Str("aggregator", evt.Aggregator.Hex()).
				Str("token", addr.Hex()).
				Str("tx", evt.TxHash.Hex()).
				Msg("oracle consumer token not tracked, skipping")
			if n.metrics != nil {
				n.metrics.OracleTokensSkipped.Inc()
			}
			continue
		}

		token.LatestFXPrice = decimal.NewNullDecimal(n.Normalize(addr, evt.Answer, oracle))
		token.FXOracleDecimals = decimals
		u.Put(token)
		updated++
	}

	if n.metrics != nil && updated > 0 {
		n.metrics.OraclePricesUpdated.Add(float64(updated))
	}
	return updated
}

// HandleOracleRegistered adds tokens to the oracle registry and records
// its declared precision. The token list only grows.
func (n *Normalizer) HandleOracleRegistered(u *store.UnitOfWork, evt *event.OracleRegistered) {
	oracle := store.GetOrCreateFXOracle(u, evt.Aggregator)
	oracle.AddTokens(evt.Tokens...)
	if evt.Decimals != nil {
		d := *evt.Decimals
		oracle.Decimals = &d
	}
	if evt.Divisor != nil && evt.Divisor.Sign() > 0 {
		oracle.Divisor = decimal.NewNullDecimal(decimal.NewFromBigInt(evt.Divisor, 0))
	}
	u.Put(oracle)
}
