package math

import (
	"errors"
	"math/big"
)

// AmpPrecision is the scale the amplification parameter is stored with
// (an amp of 200 is represented as 200_000).
var AmpPrecision = big.NewInt(1000)

const maxInvariantIterations = 255

var (
	ErrInvariantDidNotConverge = errors.New("stable invariant did not converge")
	ErrZeroBalance             = errors.New("stable invariant: zero balance")
)

// StableInvariant computes the StableSwap invariant D for the given
// 18-decimal balances and amplification parameter (scaled by AmpPrecision)
// using Newton's method in integer arithmetic. The iteration stops once two
// consecutive approximations differ by at most 1.
func StableInvariant(amp *big.Int, balances []*big.Int) (*big.Int, error) {
	sum := SumInts(balances)
	if sum.Sign() == 0 {
		return new(big.Int), nil
	}

	numTokens := big.NewInt(int64(len(balances)))
	numTokensPlusOne := big.NewInt(int64(len(balances) + 1))

	ampTimesTotal := new(big.Int).Mul(amp, numTokens)
	ampTimesTotalMinusPrecision := new(big.Int).Sub(ampTimesTotal, AmpPrecision)

	// (ampTimesTotal * sum) / AmpPrecision is constant across iterations
	ampSum := new(big.Int).Mul(ampTimesTotal, sum)
	ampSum.Quo(ampSum, AmpPrecision)

	invariant := new(big.Int).Set(sum)
	prevInvariant := new(big.Int)

	dP := getInt()
	num := getInt()
	den := getInt()
	tmp := getInt()
	defer func() {
		putInt(dP)
		putInt(num)
		putInt(den)
		putInt(tmp)
	}()

	for i := 0; i < maxInvariantIterations; i++ {
		// D_P = D^(n+1) / (n^n * prod(balances)), built incrementally
		dP.Set(invariant)
		for _, b := range balances {
			if b.Sign() == 0 {
				return nil, ErrZeroBalance
			}
			dP.Mul(dP, invariant)
			tmp.Mul(b, numTokens)
			dP.Quo(dP, tmp)
		}

		prevInvariant.Set(invariant)

		// numerator = (ampSum + D_P * n) * D
		num.Mul(dP, numTokens)
		num.Add(num, ampSum)
		num.Mul(num, invariant)

		// denominator = ((ampTimesTotal - AmpPrecision) * D) / AmpPrecision + (n + 1) * D_P
		den.Mul(ampTimesTotalMinusPrecision, invariant)
		den.Quo(den, AmpPrecision)
		tmp.Mul(numTokensPlusOne, dP)
		den.Add(den, tmp)

		invariant = new(big.Int).Quo(num, den)

		tmp.Sub(invariant, prevInvariant)
		if tmp.CmpAbs(big.NewInt(1)) <= 0 {
			return invariant, nil
		}
	}

	return nil, ErrInvariantDidNotConverge
}
