package domain

import (
	"math"

	"github.com/holiman/uint256"
)

// Protocol constants.
const (
	// MaxBasisPoints is 100% expressed in basis points.
	MaxBasisPoints = 10_000

	// LimiterPrecisionBase is the precision of MaxPositiveTokenRebase: 1e7 is 1%.
	LimiterPrecisionBase = 1_000_000_000

	// UnlimitedRebase disables the positive token rebase cap.
	UnlimitedRebase = math.MaxUint64

	secondsPerDay      = 24 * 60 * 60
	secondsPerYear     = 365 * secondsPerDay
	defaultTimeElapsed = 60 * 60
)

var (
	oneEther = uint256.NewInt(1_000_000_000_000_000_000)
	oneGwei  = uint256.NewInt(1_000_000_000)

	// depositSize is the ether a validator carries on the consensus layer after activation.
	depositSize = new(uint256.Int).Mul(uint256.NewInt(32), oneEther)

	// shareRatePrecision is the fixed-point base of share rates (1e27).
	shareRatePrecision = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(27))

	minWithdrawalAmount = uint256.NewInt(100)
	maxWithdrawalAmount = new(uint256.Int).Mul(uint256.NewInt(1000), oneEther)

	// maxAmount bounds every externally supplied amount.
	maxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// DepositSize returns the per-validator deposit in wei.
func DepositSize() *uint256.Int { return depositSize.Clone() }

// ShareRatePrecision returns the fixed-point base of share rates.
func ShareRatePrecision() *uint256.Int { return shareRatePrecision.Clone() }

// Ether converts a whole number of ether to wei.
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), oneEther)
}

// ShareRate returns ether * 1e27 / shares, or zero for an empty pool.
func ShareRate(ether, shares *uint256.Int) *uint256.Int {
	return mulDiv(ether, shareRatePrecision, shares)
}

func zero() *uint256.Int { return new(uint256.Int) }

func u64(v uint64) *uint256.Int { return uint256.NewInt(v) }

func add(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Add(x, y) }

// sub returns x - y and assumes x >= y.
func sub(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Sub(x, y) }

func mul(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Mul(x, y) }

// mulDiv returns floor(x * y / d) computed with a 512-bit intermediate.
// A zero divisor yields zero.
func mulDiv(x, y, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		return zero()
	}
	z, _ := new(uint256.Int).MulDivOverflow(x, y, d)
	return z
}

func minOf(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// orZero replaces nil amounts decoded from JSON with zero.
func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return zero()
	}
	return x
}
