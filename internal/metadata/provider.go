package metadata

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDecimals is assumed for tokens whose decimals() read fails.
const DefaultDecimals = 18

// Result is the outcome of one best-effort contract read. A failed read
// carries the zero value; callers choose the default explicitly with Or.
type Result[T any] struct {
	Value  T
	Failed bool
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fail[T any]() Result[T] {
	return Result[T]{Failed: true}
}

// Or returns the value, or def when the read failed.
func (r Result[T]) Or(def T) T {
	if r.Failed {
		return def
	}
	return r.Value
}

// TokenInfo is the ERC20 metadata of one token. Each field fails
// independently.
type TokenInfo struct {
	Symbol   Result[string]
	Name     Result[string]
	Decimals Result[int]
}

// Resolved applies the documented defaults: empty symbol and name, 18 decimals.
func (ti TokenInfo) Resolved() (symbol, name string, decimals int) {
	return ti.Symbol.Or(""), ti.Name.Or(""), ti.Decimals.Or(DefaultDecimals)
}

// AmpReading is an amplification parameter as reported by the pool.
type AmpReading struct {
	Value      *big.Int
	IsUpdating bool
	Precision  *big.Int
}

// Provider is the read-through accessor for external contract state.
// Implementations never return errors; failure is reported per Result and
// must be bounded in time by the implementation.
type Provider interface {
	TokenInfo(ctx context.Context, token common.Address) TokenInfo
	IsTokenExemptFromYieldProtocolFee(ctx context.Context, pool, token common.Address) Result[bool]
	RateProviders(ctx context.Context, pool common.Address) Result[[]common.Address]

	// Time-interpolated curve parameters.
	Amp(ctx context.Context, pool common.Address) Result[AmpReading]
	NormalizedWeights(ctx context.Context, pool common.Address) Result[[]*big.Int]
}
