package metadata

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// StaticProvider serves metadata from memory. It backs offline runs (no
// RPC configured) and tests. Anything not registered reads as failed.
type StaticProvider struct {
	mu            sync.RWMutex
	tokens        map[common.Address]TokenInfo
	exempt        map[[2]common.Address]bool
	rateProviders map[common.Address][]common.Address
	amps          map[common.Address]AmpReading
	weights       map[common.Address][]*big.Int
	calls         map[string]int
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		tokens:        make(map[common.Address]TokenInfo),
		exempt:        make(map[[2]common.Address]bool),
		rateProviders: make(map[common.Address][]common.Address),
		amps:          make(map[common.Address]AmpReading),
		weights:       make(map[common.Address][]*big.Int),
		calls:         make(map[string]int),
	}
}

func (p *StaticProvider) SetToken(token common.Address, symbol, name string, decimals int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[token] = TokenInfo{Symbol: Ok(symbol), Name: Ok(name), Decimals: Ok(decimals)}
}

func (p *StaticProvider) SetExempt(pool, token common.Address, exempt bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exempt[[2]common.Address{pool, token}] = exempt
}

func (p *StaticProvider) SetRateProviders(pool common.Address, providers []common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateProviders[pool] = providers
}

// SetAmp registers a raw amp scaled by the default precision of 1000.
func (p *StaticProvider) SetAmp(pool common.Address, amp *big.Int) {
	p.SetAmpReading(pool, AmpReading{Value: amp, Precision: big.NewInt(1000)})
}

func (p *StaticProvider) SetAmpReading(pool common.Address, reading AmpReading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.amps[pool] = reading
}

func (p *StaticProvider) SetWeights(pool common.Address, weights []*big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.weights[pool] = weights
}

// Calls returns how many times method was invoked.
func (p *StaticProvider) Calls(method string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls[method]
}

func (p *StaticProvider) record(method string) {
	p.calls[method]++
}

func (p *StaticProvider) TokenInfo(_ context.Context, token common.Address) TokenInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("TokenInfo")

	if info, ok := p.tokens[token]; ok {
		return info
	}
	return TokenInfo{Symbol: Fail[string](), Name: Fail[string](), Decimals: Fail[int]()}
}

func (p *StaticProvider) IsTokenExemptFromYieldProtocolFee(_ context.Context, pool, token common.Address) Result[bool] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("IsTokenExemptFromYieldProtocolFee")

	if v, ok := p.exempt[[2]common.Address{pool, token}]; ok {
		return Ok(v)
	}
	return Fail[bool]()
}

func (p *StaticProvider) RateProviders(_ context.Context, pool common.Address) Result[[]common.Address] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("RateProviders")

	if v, ok := p.rateProviders[pool]; ok {
		return Ok(v)
	}
	return Fail[[]common.Address]()
}

func (p *StaticProvider) Amp(_ context.Context, pool common.Address) Result[AmpReading] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Amp")

	if v, ok := p.amps[pool]; ok {
		return Ok(v)
	}
	return Fail[AmpReading]()
}

func (p *StaticProvider) NormalizedWeights(_ context.Context, pool common.Address) Result[[]*big.Int] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("NormalizedWeights")

	if v, ok := p.weights[pool]; ok {
		return Ok(v)
	}
	return Fail[[]*big.Int]()
}
