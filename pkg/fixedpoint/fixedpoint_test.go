package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	v, err := Parse("1.05")
	require.NoError(t, err)
	require.Equal(t, "1050000000000000000", v.String())

	v, err = Parse("2")
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", v.String())

	v, err = Parse("0.10")
	require.NoError(t, err)
	require.Equal(t, "100000000000000000", v.String())

	_, err = Parse("")
	require.Error(t, err)

	_, err = Parse("1.0000000000000000001")
	require.Error(t, err)

	_, err = Parse("not-a-number")
	require.Error(t, err)
}

func TestMulScalar(t *testing.T) {
	base := big.NewInt(300_000_000_000_000)
	factor := MustParse("1.05")

	got, err := MulScalar(base, factor)
	require.NoError(t, err)
	require.Equal(t, "315000000000000", got.String())
}

func TestPow(t *testing.T) {
	mult := MustParse("1.05")

	p0, err := Pow(mult, 0)
	require.NoError(t, err)
	require.Equal(t, One().String(), p0.String())

	p1, err := Pow(mult, 1)
	require.NoError(t, err)
	require.Equal(t, mult.String(), p1.String())

	p2, err := Pow(mult, 2)
	require.NoError(t, err)
	// 1.1025 with floor rounding
	require.Equal(t, "1102500000000000000", p2.String())

	// Successive powers strictly increase for a multiplier above one.
	prev := One()
	for i := uint64(1); i <= 64; i++ {
		p, err := Pow(mult, i)
		require.NoError(t, err)
		require.Equal(t, 1, p.Cmp(prev), "power %d not increasing", i)
		prev = p
	}
}

func TestPowSurvivesTenThousand(t *testing.T) {
	p, err := Pow(MustParse("1.05"), 10_000)
	require.NoError(t, err)
	require.Equal(t, 1, p.Cmp(One()))
}

func TestPowOverflow(t *testing.T) {
	_, err := Pow(MustParse("1000000000"), 1_000_000)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestApplyBps(t *testing.T) {
	require.Equal(t, "90", ApplyBps(big.NewInt(100), 9_000).String())
	require.Equal(t, "10", ApplyBps(big.NewInt(100), 1_000).String())
	// floor
	require.Equal(t, "0", ApplyBps(big.NewInt(9), 1_000).String())
}

func TestApplyPercent(t *testing.T) {
	require.Equal(t, "100", ApplyPercent(big.NewInt(100), 100).String())
	require.Equal(t, "150", ApplyPercent(big.NewInt(100), 150).String())
}

func TestBigIntScanValue(t *testing.T) {
	b := NewBigInt(big.NewInt(42))
	v, err := b.Value()
	require.NoError(t, err)
	require.Equal(t, "42", v)

	var scanned BigInt
	require.NoError(t, scanned.Scan("123456789012345678901234567890"))
	require.Equal(t, "123456789012345678901234567890", scanned.String())

	require.NoError(t, scanned.Scan(nil))
	require.Equal(t, 0, scanned.Sign())

	require.Error(t, scanned.Scan(3.14))
}
