// Package arith implements checked arithmetic on unsigned amounts. Every
// operation fails instead of wrapping around, so that a single overflow aborts
// the enclosing ledger operation before anything is written.
package arith

import (
	"math/bits"

	"go.dedis.ch/custody/core"
	"golang.org/x/xerrors"
)

// BasisPoints is the denominator of a rate expressed in basis points.
const BasisPoints = 10000

// Add returns a + b.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, xerrors.Errorf("%d + %d: %w", a, b, core.ErrArithmeticOverflow)
	}

	return sum, nil
}

// Sub returns a - b.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, xerrors.Errorf("%d - %d: %w", a, b, core.ErrArithmeticOverflow)
	}

	return diff, nil
}

// Mul returns a * b.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, xerrors.Errorf("%d * %d: %w", a, b, core.ErrArithmeticOverflow)
	}

	return lo, nil
}

// Div returns the floor of a / b.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, xerrors.Errorf("%d / 0: %w", a, core.ErrArithmeticOverflow)
	}

	return a / b, nil
}

// MulDiv returns the floor of a * b / d. The intermediate product is kept on
// 128 bits so it only fails when the final quotient does not fit.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, xerrors.Errorf("%d * %d / 0: %w", a, b, core.ErrArithmeticOverflow)
	}

	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, xerrors.Errorf("%d * %d / %d: %w", a, b, d, core.ErrArithmeticOverflow)
	}

	quo, _ := bits.Div64(hi, lo, d)

	return quo, nil
}

// Sum adds the values together.
func Sum(values ...uint64) (uint64, error) {
	var total uint64

	for _, v := range values {
		var err error

		total, err = Add(total, v)
		if err != nil {
			return 0, err
		}
	}

	return total, nil
}

// Fee returns floor(amount * rate / 10000) where rate is in basis points.
func Fee(amount, rate uint64) (uint64, error) {
	if rate > BasisPoints {
		return 0, xerrors.Errorf("rate %d above %d: %w", rate, BasisPoints, core.ErrInvalidInput)
	}

	return MulDiv(amount, rate, BasisPoints)
}
