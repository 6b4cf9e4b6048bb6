package math

import (
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// ShareDecimals is the fixed precision of every pool share token.
const ShareDecimals = 18

// OracleDecimals is the precision FX oracle answers are expressed in once normalized.
const OracleDecimals = 8

var (
	// One is 1e18, the fixed-point unit used by rates and the stable invariant.
	One = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	tenPows   = map[int]*big.Int{}
	tenPowsMu sync.RWMutex
)

// Int256 is a pooled big.Int for intermediate calculations
var int256Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return int256Pool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int256Pool.Put(v)
}

// Pow10 returns 10^n. The returned value must not be mutated.
func Pow10(n int) *big.Int {
	tenPowsMu.RLock()
	v, ok := tenPows[n]
	tenPowsMu.RUnlock()
	if ok {
		return v
	}

	v = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	tenPowsMu.Lock()
	tenPows[n] = v
	tenPowsMu.Unlock()
	return v
}

// ToDecimal divides raw by 10^decimals exactly.
func ToDecimal(raw *big.Int, decimals int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromDecimal truncates value to decimals fractional digits (toward zero)
// and scales it up to a raw integer amount.
func FromDecimal(value decimal.Decimal, decimals int) *big.Int {
	return value.Truncate(int32(decimals)).Shift(int32(decimals)).BigInt()
}

// SumInts returns the sum of values without mutating them.
func SumInts(values []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, v := range values {
		if v != nil {
			sum.Add(sum, v)
		}
	}
	return sum
}

// MulDiv computes a * b / c rounding toward zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	tmp := getInt()
	defer putInt(tmp)

	tmp.Mul(a, b)
	return new(big.Int).Quo(tmp, c)
}
