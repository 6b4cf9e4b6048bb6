package metadata

import (
	"PoolLedger/internal/observability"
	"context"
	"math/big"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	rstore "github.com/eko/gocache/store/ristretto/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"
)

// NewCache builds the in-process ristretto cache used for metadata reads.
func NewCache(maxEntries int64) (*cache.Cache[[]byte], error) {
	rcache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return cache.New[[]byte](rstore.NewRistretto(rcache)), nil
}

// CachedProvider is a read-through cache in front of another Provider.
// Token metadata, rate providers and fee exemptions are immutable on
// chain and cached; curve parameters move with time and always pass through.
// Failed reads are never cached.
type CachedProvider struct {
	next    Provider
	cache   *cache.Cache[[]byte]
	ttl     time.Duration
	metrics *observability.Metrics
}

func NewCachedProvider(next Provider, c *cache.Cache[[]byte], ttl time.Duration, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{next: next, cache: c, ttl: ttl, metrics: metrics}
}

type cachedTokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

func (p *CachedProvider) get(ctx context.Context, key string, out interface{}) bool {
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := sonnet.Unmarshal(data, out); err != nil {
		return false
	}
	if p.metrics != nil {
		p.metrics.MetadataCacheHit.Inc()
	}
	return true
}

func (p *CachedProvider) set(ctx context.Context, key string, v interface{}) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return
	}
	p.cache.Set(ctx, key, data, store.WithExpiration(p.ttl), store.WithCost(1))
}

func (p *CachedProvider) TokenInfo(ctx context.Context, token common.Address) TokenInfo {
	key := "token:" + token.Hex()

	var c cachedTokenInfo
	if p.get(ctx, key, &c) {
		return TokenInfo{Symbol: Ok(c.Symbol), Name: Ok(c.Name), Decimals: Ok(c.Decimals)}
	}

	info := p.next.TokenInfo(ctx, token)
	if !info.Symbol.Failed && !info.Name.Failed && !info.Decimals.Failed {
		p.set(ctx, key, cachedTokenInfo{
			Symbol:   info.Symbol.Value,
			Name:     info.Name.Value,
			Decimals: info.Decimals.Value,
		})
	}
	return info
}

func (p *CachedProvider) IsTokenExemptFromYieldProtocolFee(ctx context.Context, pool, token common.Address) Result[bool] {
	key := "exempt:" + pool.Hex() + ":" + token.Hex()

	var exempt bool
	if p.get(ctx, key, &exempt) {
		return Ok(exempt)
	}

	r := p.next.IsTokenExemptFromYieldProtocolFee(ctx, pool, token)
	if !r.Failed {
		p.set(ctx, key, r.Value)
	}
	return r
}

func (p *CachedProvider) RateProviders(ctx context.Context, pool common.Address) Result[[]common.Address] {
	key := "rateProviders:" + pool.Hex()

	var providers []common.Address
	if p.get(ctx, key, &providers) {
		return Ok(providers)
	}

	r := p.next.RateProviders(ctx, pool)
	if !r.Failed {
		p.set(ctx, key, r.Value)
	}
	return r
}

func (p *CachedProvider) Amp(ctx context.Context, pool common.Address) Result[AmpReading] {
	return p.next.Amp(ctx, pool)
}

func (p *CachedProvider) NormalizedWeights(ctx context.Context, pool common.Address) Result[[]*big.Int] {
	return p.next.NormalizedWeights(ctx, pool)
}
