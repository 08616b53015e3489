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

package wei

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestDenominations(t *testing.T) {
	assert.Equal(t, uint256.MustFromDecimal("1000000000000000000"), Ether(1))
	assert.Equal(t, uint256.MustFromDecimal("42000000000000000000"), Ether(42))
	assert.Equal(t, uint256.MustFromDecimal("1000000000000000"), Finney(1))
	assert.Equal(t, uint256.MustFromDecimal("1000000000000"), Szabo(1))
	assert.Equal(t, uint256.NewInt(1000000000), Gwei(1))
	assert.Equal(t, uint256.NewInt(1000000), Mwei(1))
	assert.Equal(t, uint256.NewInt(1000), Kwei(1))
}

func TestZero(t *testing.T) {
	assert.True(t, Ether(0).IsZero())
}
