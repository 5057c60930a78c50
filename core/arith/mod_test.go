package arith

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody/core"
)

func TestAdd(t *testing.T) {
	res, err := Add(2, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(5), res)

	res, err = Add(math.MaxUint64-1, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), res)

	_, err = Add(math.MaxUint64, 1)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)
	require.EqualError(t, err, "18446744073709551615 + 1: arithmetic overflow")
}

func TestSub(t *testing.T) {
	res, err := Sub(10, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(6), res)

	res, err = Sub(4, 4)
	require.NoError(t, err)
	require.Zero(t, res)

	_, err = Sub(4, 5)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)
}

func TestMul(t *testing.T) {
	res, err := Mul(1<<32, 1<<31)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<63), res)

	_, err = Mul(1<<32, 1<<32)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)

	res, err = Mul(0, math.MaxUint64)
	require.NoError(t, err)
	require.Zero(t, res)
}

func TestDiv(t *testing.T) {
	res, err := Div(7, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), res)

	_, err = Div(7, 0)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)
}

func TestMulDiv(t *testing.T) {
	// The product overflows 64 bits but the quotient does not.
	res, err := MulDiv(math.MaxUint64, 250, 10000)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64/10000*250+(math.MaxUint64%10000)*250/10000), res)

	res, err = MulDiv(999, 250, 10000)
	require.NoError(t, err)
	require.Equal(t, uint64(24), res)

	_, err = MulDiv(math.MaxUint64, 2, 1)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)

	_, err = MulDiv(1, 1, 0)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)
}

func TestSum(t *testing.T) {
	res, err := Sum()
	require.NoError(t, err)
	require.Zero(t, res)

	res, err = Sum(1, 2, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(6), res)

	_, err = Sum(1, math.MaxUint64)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)
}

func TestFee(t *testing.T) {
	fee, err := Fee(1000, 250)
	require.NoError(t, err)
	require.Equal(t, uint64(25), fee)

	fee, err = Fee(3, 3333)
	require.NoError(t, err)
	require.Zero(t, fee)

	_, err = Fee(1000, 10001)
	require.ErrorIs(t, err, core.ErrInvalidInput)
}
