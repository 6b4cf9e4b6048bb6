package metadata

import (
	"PoolLedger/internal/observability"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/forta-network/go-multicall"
	"github.com/rs/zerolog"
)

type stringOutput struct {
	Value string
}

type uint8Output struct {
	Value uint8
}

type boolOutput struct {
	Value bool
}

type addressesOutput struct {
	Value []common.Address
}

type uintsOutput struct {
	Value []*big.Int
}

type ampOutput struct {
	Value      *big.Int
	IsUpdating bool
	Precision  *big.Int
}

// MulticallProvider batches contract reads through the Multicall3 contract.
// Every batch runs under its own timeout and is retried with exponential
// backoff before the affected reads are reported as failed.
type MulticallProvider struct {
	caller   *multicall.Caller
	timeout  time.Duration
	attempts int
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

type MulticallConfig struct {
	RPCURL   string
	Timeout  time.Duration
	Attempts int
}

func NewMulticallProvider(ctx context.Context, cfg MulticallConfig, metrics *observability.Metrics) (*MulticallProvider, error) {
	caller, err := multicall.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial multicall: %w", err)
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &MulticallProvider{
		caller:   caller,
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		metrics:  metrics,
		logger:   observability.NewLogger("metadata"),
	}, nil
}

// call runs one multicall batch. A transport error fails every call in the
// batch; individual reverts are reported through Call.Failed.
func (p *MulticallProvider) call(ctx context.Context, method string, calls ...*multicall.Call) ([]*multicall.Call, bool) {
	if p.metrics != nil {
		p.metrics.MetadataCalls.WithLabelValues(method).Add(float64(len(calls)))
	}

	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		results, err := p.caller.Call(&bind.CallOpts{Context: callCtx}, calls...)
		cancel()
		if err == nil {
			return results, true
		}

		p.logger.Warn().
			Err(err).
			Str("method", method).
			Int("attempt", attempt).
			Msg("multicall batch failed")

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, false
}

func (p *MulticallProvider) failed(method string) {
	if p.metrics != nil {
		p.metrics.MetadataFailures.WithLabelValues(method).Inc()
	}
}

func (p *MulticallProvider) TokenInfo(ctx context.Context, token common.Address) TokenInfo {
	info := TokenInfo{
		Symbol:   Fail[string](),
		Name:     Fail[string](),
		Decimals: Fail[int](),
	}

	contract, err := multicall.NewContract(erc20ABI, token.Hex())
	if err != nil {
		p.failed("erc20")
		return info
	}

	calls, ok := p.call(ctx, "erc20",
		contract.NewCall(new(stringOutput), "symbol").AllowFailure(),  // 0
		contract.NewCall(new(stringOutput), "name").AllowFailure(),    // 1
		contract.NewCall(new(uint8Output), "decimals").AllowFailure(), // 2
	)
	if !ok {
		p.failed("erc20")
		return info
	}

	if !calls[0].Failed {
		info.Symbol = Ok(calls[0].Outputs.(*stringOutput).Value)
	} else {
		p.failed("symbol")
	}
	if !calls[1].Failed {
		info.Name = Ok(calls[1].Outputs.(*stringOutput).Value)
	} else {
		p.failed("name")
	}
	if !calls[2].Failed {
		info.Decimals = Ok(int(calls[2].Outputs.(*uint8Output).Value))
	} else {
		p.failed("decimals")
	}
	return info
}

func (p *MulticallProvider) poolCall(ctx context.Context, pool common.Address, method string, out interface{}, inputs ...interface{}) (interface{}, bool) {
	contract, err := multicall.NewContract(poolABI, pool.Hex())
	if err != nil {
		p.failed(method)
		return nil, false
	}

	calls, ok := p.call(ctx, method, contract.NewCall(out, method, inputs...).AllowFailure())
	if !ok || calls[0].Failed {
		p.failed(method)
		return nil, false
	}
	return calls[0].Outputs, true
}

func (p *MulticallProvider) IsTokenExemptFromYieldProtocolFee(ctx context.Context, pool, token common.Address) Result[bool] {
	out, ok := p.poolCall(ctx, pool, "isTokenExemptFromYieldProtocolFee", new(boolOutput), token)
	if !ok {
		return Fail[bool]()
	}
	return Ok(out.(*boolOutput).Value)
}

func (p *MulticallProvider) RateProviders(ctx context.Context, pool common.Address) Result[[]common.Address] {
	out, ok := p.poolCall(ctx, pool, "getRateProviders", new(addressesOutput))
	if !ok {
		return Fail[[]common.Address]()
	}
	return Ok(out.(*addressesOutput).Value)
}

func (p *MulticallProvider) Amp(ctx context.Context, pool common.Address) Result[AmpReading] {
	out, ok := p.poolCall(ctx, pool, "getAmplificationParameter", new(ampOutput))
	if !ok {
		return Fail[AmpReading]()
	}
	amp := out.(*ampOutput)
	return Ok(AmpReading{Value: amp.Value, IsUpdating: amp.IsUpdating, Precision: amp.Precision})
}

func (p *MulticallProvider) NormalizedWeights(ctx context.Context, pool common.Address) Result[[]*big.Int] {
	out, ok := p.poolCall(ctx, pool, "getNormalizedWeights", new(uintsOutput))
	if !ok {
		return Fail[[]*big.Int]()
	}
	return Ok(out.(*uintsOutput).Value)
}
