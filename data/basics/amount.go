// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-blocklattice
//
// go-blocklattice is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-blocklattice is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-blocklattice.  If not, see <https://www.gnu.org/licenses/>.

package basics

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Amount is a balance or voting weight in raw units. Raw balances need 128
// bits; the 256-bit representation leaves headroom when weights are summed.
type Amount uint256.Int

var (
	// GxrbRatio is the number of raw units in one Gxrb.
	GxrbRatio = MustParseAmount("1000000000000000000000000000000000")
	// MxrbRatio is the number of raw units in one Mxrb.
	MxrbRatio = MustParseAmount("1000000000000000000000000000000")
)

// NewAmount returns an Amount holding raw.
func NewAmount(raw uint64) Amount {
	var v uint256.Int
	v.SetUint64(raw)
	return Amount(v)
}

// ParseAmount parses a decimal raw amount.
func ParseAmount(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount(*v), nil
}

// MustParseAmount is ParseAmount for constants; it panics on malformed input.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *Amount) u() *uint256.Int {
	return (*uint256.Int)(a)
}

// Add returns a+b, saturating at the maximum value.
func (a Amount) Add(b Amount) Amount {
	var z uint256.Int
	if _, overflow := z.AddOverflow(a.u(), b.u()); overflow {
		z.SetAllOne()
	}
	return Amount(z)
}

// Sub returns a-b, or zero when b > a.
func (a Amount) Sub(b Amount) Amount {
	var z uint256.Int
	if _, underflow := z.SubOverflow(a.u(), b.u()); underflow {
		return Amount{}
	}
	return Amount(z)
}

// Div64 returns a/n; division by zero yields zero.
func (a Amount) Div64(n uint64) Amount {
	if n == 0 {
		return Amount{}
	}
	var z uint256.Int
	z.Div(a.u(), uint256.NewInt(n))
	return Amount(z)
}

// Mul64 returns a*n, saturating at the maximum value.
func (a Amount) Mul64(n uint64) Amount {
	var z uint256.Int
	if _, overflow := z.MulOverflow(a.u(), uint256.NewInt(n)); overflow {
		z.SetAllOne()
	}
	return Amount(z)
}

// Cmp returns -1, 0 or +1 as a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.u().Cmp(b.u())
}

// LessThan returns a < b
func (a Amount) LessThan(b Amount) bool {
	return a.u().Lt(b.u())
}

// GreaterThan returns a > b
func (a Amount) GreaterThan(b Amount) bool {
	return a.u().Gt(b.u())
}

// IsZero returns a == 0
func (a Amount) IsZero() bool {
	return a.u().IsZero()
}

// Float64 returns the nearest float64; only for ratios and logging.
func (a Amount) Float64() float64 {
	f, _ := new(big.Float).SetInt(a.u().ToBig()).Float64()
	return f
}

// String returns the decimal raw amount
func (a Amount) String() string {
	return a.u().Dec()
}

// MarshalText encodes the amount as a decimal string
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a decimal string
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MaxAmount returns the larger of a and b
func MaxAmount(a, b Amount) Amount {
	if a.LessThan(b) {
		return b
	}
	return a
}

// Bytes16 returns the low 128 bits big endian, the width balances are hashed with.
func (a Amount) Bytes16() (out [16]byte) {
	b := a.u().Bytes32()
	copy(out[:], b[16:])
	return
}
