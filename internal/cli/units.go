package cli

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	etherDecimals     = 18
	shareRateDecimals = 27
)

// formatEther renders wei as ether with trailing zeros removed.
func formatEther(wei *uint256.Int) string {
	return scaled(wei, etherDecimals).String() + " ETH"
}

// formatShareRate renders a 1e27 fixed-point rate as ether per share.
func formatShareRate(rate *uint256.Int) string {
	return scaled(rate, shareRateDecimals).StringFixed(9)
}

func scaled(v *uint256.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals)
}

// parseEther reads an ether amount such as "32", "0.5" or "1.25 ETH" into wei.
// A "wei" suffix takes the number as wei.
func parseEther(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	exp := int32(etherDecimals)
	switch lower := strings.ToLower(s); {
	case strings.HasSuffix(lower, "wei"):
		s, exp = strings.TrimSpace(s[:len(s)-3]), 0
	case strings.HasSuffix(lower, "eth"):
		s = strings.TrimSpace(s[:len(s)-3])
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	d = d.Shift(exp)
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, exp)
	}

	wei, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q out of range", s)
	}
	return wei, nil
}
