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

package solast

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stack(words ...uint64) []uint256.Int {
	out := make([]uint256.Int, len(words))
	for i, w := range words {
		out[i].SetUint64(w)
	}
	return out
}

func TestValueWords(t *testing.T) {
	ctx := &Context{Stack: stack(42)}
	v, err := ParseType("uint256").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, ValueUint, v.Kind)
	assert.Equal(t, "42", v.String())
	assert.Empty(t, ctx.Stack)

	v, err = ParseType("bool").Value(&Context{Stack: stack(1)})
	require.NoError(t, err)
	assert.True(t, v.Bool)
	assert.Equal(t, "true", v.String())

	v, err = ParseType("bool").Value(&Context{Stack: stack(0)})
	require.NoError(t, err)
	assert.False(t, v.Bool)

	addr := uint256.MustFromHex("0xdeadbeef00000000000000000000000000000001")
	v, err = ParseType("address").Value(&Context{Stack: []uint256.Int{*addr}})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xdeadbeef00000000000000000000000000000001"), v.Address)

	v, err = ParseType("bytes32").Value(&Context{Stack: stack(0xff)})
	require.NoError(t, err)
	require.Len(t, v.Bytes, 32)
	assert.Equal(t, byte(0xff), v.Bytes[31])

	_, err = ParseType("uint256").Value(&Context{})
	assert.ErrorIs(t, err, ErrStackUnderflow)
}

func TestValueEnum(t *testing.T) {
	r := NewRegistry(parseTestAST(t))
	typ := ParseType("enum Ledger.State")

	v, err := typ.Value(&Context{Stack: stack(1), Registry: r})
	require.NoError(t, err)
	assert.Equal(t, "Ledger.State.Closed", v.String())

	// Out of range variants fall back to the numeric form.
	v, err = typ.Value(&Context{Stack: stack(7), Registry: r})
	require.NoError(t, err)
	assert.Equal(t, "Ledger.State(7)", v.String())

	// No registry at all still renders.
	v, err = typ.Value(&Context{Stack: stack(0)})
	require.NoError(t, err)
	assert.Equal(t, "Ledger.State(0)", v.String())
}

func TestValueCallDataBytes(t *testing.T) {
	calldata := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	// Offset below the length on the stack, length on top.
	ctx := &Context{Stack: stack(1, 3), CallData: calldata}
	v, err := ParseType("bytes calldata").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbb, 0xcc, 0xdd}, v.Bytes)
	assert.Empty(t, ctx.Stack)

	_, err = ParseType("bytes calldata").Value(&Context{Stack: stack(4, 3), CallData: calldata})
	assert.Error(t, err)
}

func TestValueMemoryBytes(t *testing.T) {
	memory := make([]byte, 64)
	memory[31] = 3 // length prefix at offset 0
	copy(memory[32:], []byte{0x01, 0x02, 0x03})

	v, err := ParseType("bytes memory").Value(&Context{Stack: stack(0), Memory: memory})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, v.Bytes)

	_, err = ParseType("bytes memory").Value(&Context{Stack: stack(100), Memory: memory})
	assert.Error(t, err)
}

func TestValueDisplayOnly(t *testing.T) {
	ctx := &Context{Stack: stack(1, 2)}

	v, err := ParseType("mapping(address => uint256)").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mapping(address => uint256)", v.String())
	// Display only types never consume the stack.
	assert.Len(t, ctx.Stack, 2)

	v, err = ParseType("struct Token.Holder storage pointer").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "struct Token.Holder storage pointer", v.String())

	v, err = ParseType("bytes storage ref").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bytes storage", v.String())

	v, err = ParseType("tuple(uint256)").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tuple(uint256)", v.String())
	assert.Len(t, ctx.Stack, 2)
}
