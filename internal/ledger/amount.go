package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// Decimals of the receipt token; matches the native currency so 1 token unit == 1 wei.
const Decimals = 18

// MaxAmount is the largest representable quantity (2^256-1).
var MaxAmount = new(big.Int).Set(math.MaxBig256)

const (
	// maxAmountDigits is len(MaxAmount.String()).
	maxAmountDigits = 78
	// maxAmountLen caps amount strings: 78 integer digits, a point and 18 decimals fit.
	maxAmountLen = 128
)

// ParseEther converts a decimal ether string ("0.5") to wei.
// Fractions below one wei are rejected rather than truncated.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if len(s) > maxAmountLen {
		return nil, fmt.Errorf("%w: amount is too long", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsZero() {
		return zero(), nil
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	// "1e300000000" is short but huge: bound the magnitude by the exponent
	// before BigInt materializes 10^exp.
	if exp := int64(d.Exponent()) + Decimals; exp > 0 && exp+int64(len(d.Coefficient().String())) > maxAmountDigits {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	wei := d.Shift(Decimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}
	v := wei.BigInt()
	if v.Cmp(MaxAmount) > 0 {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return v, nil
}

// MustParseEther is ParseEther for constants and tests.
func MustParseEther(s string) *big.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseWei parses a base-10 integer wei string, used when a client sends
// the exact amount instead of an ether decimal.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxAmountLen {
		return nil, fmt.Errorf("%w: amount is too long", ErrInvalidAmount)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.Cmp(MaxAmount) > 0 {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return v, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}

// add returns a+b, failing instead of wrapping past MaxAmount.
func add(a, b *big.Int) (*big.Int, error) {
	r := new(big.Int).Add(a, b)
	if r.Cmp(MaxAmount) > 0 {
		return nil, ErrOverflow
	}
	return r, nil
}

// sub returns a-b, failing instead of wrapping below zero.
func sub(a, b *big.Int) (*big.Int, error) {
	if a.Cmp(b) < 0 {
		return nil, ErrUnderflow
	}
	return new(big.Int).Sub(a, b), nil
}

func minAmount(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func zero() *big.Int { return new(big.Int) }

func clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
