// Copyright 2018 The parables Authors
// This file is part of the parables library.
//
// The parables library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The parables library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the parables library. If not, see <http://www.gnu.org/licenses/>.

// Package wei converts ethereum denominations into wei amounts.
package wei

import "github.com/holiman/uint256"

func scale(value uint64, exp int64) *uint256.Int {
	ten := uint256.NewInt(10)
	out := new(uint256.Int).Exp(ten, uint256.NewInt(uint64(exp)))
	return out.Mul(out, uint256.NewInt(value))
}

// Ether converts ether to wei.
func Ether(value uint64) *uint256.Int { return scale(value, 18) }

// Finney converts finney to wei.
func Finney(value uint64) *uint256.Int { return scale(value, 15) }

// Szabo converts szabo to wei.
func Szabo(value uint64) *uint256.Int { return scale(value, 12) }

// Gwei converts gigawei to wei.
func Gwei(value uint64) *uint256.Int { return scale(value, 9) }

// Mwei converts megawei to wei.
func Mwei(value uint64) *uint256.Int { return scale(value, 6) }

// Kwei converts kilowei to wei.
func Kwei(value uint64) *uint256.Int { return scale(value, 3) }
