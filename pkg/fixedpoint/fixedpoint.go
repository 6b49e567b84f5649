package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the fractional precision used for scaled values.
const Decimals = 18

// ErrOverflow is returned when a computation exceeds the supported width.
// Results are capped rather than silently wrapped.
var ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

var (
	one = func() *big.Int {
		v, _ := new(big.Int).SetString("1000000000000000000", 10)
		return v
	}()

	// maxValue bounds every result to 1024 bits. Token amounts never get
	// close under normal operation; the cap catches runaway exponents.
	maxValue = new(big.Int).Lsh(big.NewInt(1), 1024)
)

// One returns the scaled representation of 1.0.
func One() *big.Int {
	return new(big.Int).Set(one)
}

// Parse converts a decimal literal such as "1.05" into a scaled value.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("fixedpoint: empty literal")
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if len(fracPart) > Decimals {
		return nil, fmt.Errorf("fixedpoint: %q exceeds %d fractional digits", s, Decimals)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("fixedpoint: invalid literal %q", s)
	}
	whole.Mul(whole, one)

	if fracPart != "" {
		frac, ok := new(big.Int).SetString(fracPart, 10)
		if !ok || frac.Sign() < 0 {
			return nil, fmt.Errorf("fixedpoint: invalid literal %q", s)
		}
		for i := len(fracPart); i < Decimals; i++ {
			frac.Mul(frac, big.NewInt(10))
		}
		if whole.Sign() < 0 {
			whole.Sub(whole, frac)
		} else {
			whole.Add(whole, frac)
		}
	}

	return whole, nil
}

// MustParse is Parse for literals known to be valid at compile time.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Mul multiplies two scaled values, flooring the result back to scale.
func Mul(a, b *big.Int) (*big.Int, error) {
	r := new(big.Int).Mul(a, b)
	r.Quo(r, one)
	return checked(r)
}

// MulScalar multiplies a plain integer amount by a scaled factor, flooring.
func MulScalar(amount, factor *big.Int) (*big.Int, error) {
	r := new(big.Int).Mul(amount, factor)
	r.Quo(r, one)
	return checked(r)
}

// Pow raises a scaled base to a non-negative integer exponent by squaring.
func Pow(base *big.Int, exp uint64) (*big.Int, error) {
	result := One()
	b := new(big.Int).Set(base)

	for exp > 0 {
		var err error
		if exp&1 == 1 {
			if result, err = Mul(result, b); err != nil {
				return nil, err
			}
		}
		exp >>= 1
		if exp == 0 {
			break
		}
		if b, err = Mul(b, b); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ApplyBps scales a plain integer amount by basis points, flooring.
func ApplyBps(amount *big.Int, bps int64) *big.Int {
	r := new(big.Int).Mul(amount, big.NewInt(bps))
	return r.Quo(r, big.NewInt(10_000))
}

// ApplyPercent scales a plain integer amount by an integer percentage,
// flooring. 100 is identity.
func ApplyPercent(amount *big.Int, pct int64) *big.Int {
	r := new(big.Int).Mul(amount, big.NewInt(pct))
	return r.Quo(r, big.NewInt(100))
}

func checked(v *big.Int) (*big.Int, error) {
	if v.CmpAbs(maxValue) >= 0 {
		return nil, ErrOverflow
	}
	return v, nil
}
