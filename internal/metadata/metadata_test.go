package metadata_test

import (
	"PoolLedger/internal/metadata"
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	pool = common.HexToAddress("0x32296969ef14eb0c6d29669c550d4a0449130230")
)

func TestResult_Or(t *testing.T) {
	if got := metadata.Ok(6).Or(18); got != 6 {
		t.Errorf("ok result: got %d", got)
	}
	if got := metadata.Fail[int]().Or(18); got != 18 {
		t.Errorf("failed result: got %d", got)
	}
}

func TestTokenInfo_ResolvedDefaults(t *testing.T) {
	p := metadata.NewStaticProvider()

	symbol, name, decimals := p.TokenInfo(context.Background(), usdc).Resolved()
	if symbol != "" || name != "" || decimals != metadata.DefaultDecimals {
		t.Errorf("defaults: got %q %q %d", symbol, name, decimals)
	}

	p.SetToken(usdc, "USDC", "USD Coin", 6)
	symbol, name, decimals = p.TokenInfo(context.Background(), usdc).Resolved()
	if symbol != "USDC" || name != "USD Coin" || decimals != 6 {
		t.Errorf("registered: got %q %q %d", symbol, name, decimals)
	}
}

func TestTokenInfo_FieldsFailIndependently(t *testing.T) {
	info := metadata.TokenInfo{
		Symbol:   metadata.Ok("WETH"),
		Name:     metadata.Fail[string](),
		Decimals: metadata.Ok(18),
	}
	symbol, name, decimals := info.Resolved()
	if symbol != "WETH" || name != "" || decimals != 18 {
		t.Errorf("got %q %q %d", symbol, name, decimals)
	}
}

func TestStaticProvider_ExemptionDefaultsToAbsent(t *testing.T) {
	p := metadata.NewStaticProvider()
	if p.IsTokenExemptFromYieldProtocolFee(context.Background(), pool, usdc).Or(false) {
		t.Error("unregistered exemption must default to false")
	}

	p.SetExempt(pool, usdc, true)
	if !p.IsTokenExemptFromYieldProtocolFee(context.Background(), pool, usdc).Or(false) {
		t.Error("registered exemption lost")
	}
}

func TestCachedProvider_PassesThroughAndCaches(t *testing.T) {
	c, err := metadata.NewCache(1000)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	static := metadata.NewStaticProvider()
	static.SetToken(usdc, "USDC", "USD Coin", 6)
	p := metadata.NewCachedProvider(static, c, time.Minute, nil)

	ctx := context.Background()
	symbol, _, decimals := p.TokenInfo(ctx, usdc).Resolved()
	if symbol != "USDC" || decimals != 6 {
		t.Fatalf("first read: got %q %d", symbol, decimals)
	}

	// ristretto admits writes asynchronously; a second read is either a hit
	// or another pass-through, and both must agree with the source
	symbol, _, decimals = p.TokenInfo(ctx, usdc).Resolved()
	if symbol != "USDC" || decimals != 6 {
		t.Errorf("second read: got %q %d", symbol, decimals)
	}
	if static.Calls("TokenInfo") > 2 {
		t.Errorf("source read %d times", static.Calls("TokenInfo"))
	}
}

func TestCachedProvider_FailuresNotCached(t *testing.T) {
	c, err := metadata.NewCache(1000)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	static := metadata.NewStaticProvider()
	p := metadata.NewCachedProvider(static, c, time.Minute, nil)

	ctx := context.Background()
	if !p.RateProviders(ctx, pool).Failed {
		t.Fatal("expected failed read")
	}

	static.SetRateProviders(pool, []common.Address{usdc})
	r := p.RateProviders(ctx, pool)
	if r.Failed || len(r.Value) != 1 {
		t.Errorf("after registration: got %+v", r)
	}
}
