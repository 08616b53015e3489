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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ErrStackUnderflow is returned when a type needs more stack words than the
// captured frame holds. Callers treat it as a failed decode, not a fault.
var ErrStackUnderflow = errors.New("stack underflow while decoding value")

// ValueKind tags the decoded representation of a variable.
type ValueKind byte

const (
	ValueBytes ValueKind = iota
	ValueUint
	ValueBool
	ValueAddress
	ValueEnum
	// ValueType carries no data, only the rendered type of a variable that
	// cannot be decoded from the stack (mappings, storage references).
	ValueType
)

// Value is a decoded variable binding.
type Value struct {
	Kind    ValueKind
	Bytes   []byte
	Uint    uint256.Int
	Bool    bool
	Address common.Address
	Enum    string
	Type    string
}

func (v Value) String() string {
	switch v.Kind {
	case ValueBytes:
		return hexutil.Encode(v.Bytes)
	case ValueUint:
		return v.Uint.Dec()
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValueAddress:
		return v.Address.Hex()
	case ValueEnum:
		return v.Enum
	default:
		return v.Type
	}
}

// Context is a captured view of the machine state at a single instruction,
// used to decode variable values. The stack is ordered bottom to top, so
// pops come off the end of the slice.
type Context struct {
	Stack    []uint256.Int
	Memory   []byte
	CallData []byte
	Registry *Registry
}

func (c *Context) pop() (uint256.Int, error) {
	if len(c.Stack) == 0 {
		return uint256.Int{}, ErrStackUnderflow
	}
	v := c.Stack[len(c.Stack)-1]
	c.Stack = c.Stack[:len(c.Stack)-1]
	return v, nil
}

// Value decodes one value of this type from the context, consuming the
// stack words the compiler leaves behind for it.
func (t *Type) Value(ctx *Context) (Value, error) {
	switch t.Kind {
	case TypeUint256:
		v, err := ctx.pop()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: ValueUint, Uint: v}, nil

	case TypeBool:
		v, err := ctx.pop()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: ValueBool, Bool: !v.IsZero()}, nil

	case TypeAddress:
		v, err := ctx.pop()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: ValueAddress, Address: common.Address(v.Bytes20())}, nil

	case TypeBytes32:
		v, err := ctx.pop()
		if err != nil {
			return Value{}, err
		}
		b := v.Bytes32()
		return Value{Kind: ValueBytes, Bytes: b[:]}, nil

	case TypeEnum:
		v, err := ctx.pop()
		if err != nil {
			return Value{}, err
		}
		name := fmt.Sprintf("%s(%s)", t.Name, v.Dec())
		if e := ctx.Registry.Enum(t.Name); e != nil {
			if idx := v.Uint64(); v.IsUint64() && idx < uint64(len(e.Variants)) {
				name = t.Name + "." + e.Variants[idx]
			}
		}
		return Value{Kind: ValueEnum, Enum: name}, nil

	case TypeBytes:
		switch t.Loc {
		case LocCallData:
			return decodeCallDataBytes(ctx)
		case LocMemory:
			return decodeMemoryBytes(ctx)
		}
		// Storage byte arrays are a slot reference, not a decodable value.
		return Value{Kind: ValueType, Type: t.String()}, nil

	case TypeMapping, TypeStruct, TypeFunction:
		return Value{Kind: ValueType, Type: t.String()}, nil
	}
	return Value{Kind: ValueType, Type: t.String()}, nil
}

// Calldata byte arrays sit on the stack as a length word on top of an
// offset word.
func decodeCallDataBytes(ctx *Context) (Value, error) {
	length, err := ctx.pop()
	if err != nil {
		return Value{}, err
	}
	offset, err := ctx.pop()
	if err != nil {
		return Value{}, err
	}
	if !length.IsUint64() || !offset.IsUint64() {
		return Value{}, fmt.Errorf("calldata span out of range: %s+%s", offset.Dec(), length.Dec())
	}
	o, l := offset.Uint64(), length.Uint64()
	if o+l > uint64(len(ctx.CallData)) {
		return Value{}, fmt.Errorf("calldata span %d+%d exceeds input of %d bytes", o, l, len(ctx.CallData))
	}
	out := make([]byte, l)
	copy(out, ctx.CallData[o:o+l])
	return Value{Kind: ValueBytes, Bytes: out}, nil
}

// Memory byte arrays are a single pointer word: a 32-byte big endian length
// at the offset, followed by the data.
func decodeMemoryBytes(ctx *Context) (Value, error) {
	offset, err := ctx.pop()
	if err != nil {
		return Value{}, err
	}
	if !offset.IsUint64() {
		return Value{}, fmt.Errorf("memory offset out of range: %s", offset.Dec())
	}
	o := offset.Uint64()
	if o+32 > uint64(len(ctx.Memory)) {
		return Value{}, fmt.Errorf("memory offset %d exceeds memory of %d bytes", o, len(ctx.Memory))
	}
	length := new(uint256.Int).SetBytes(ctx.Memory[o : o+32])
	if !length.IsUint64() {
		return Value{}, fmt.Errorf("memory length out of range: %s", length.Dec())
	}
	l := length.Uint64()
	if o+32+l > uint64(len(ctx.Memory)) {
		return Value{}, fmt.Errorf("memory span %d+%d exceeds memory of %d bytes", o+32, l, len(ctx.Memory))
	}
	out := make([]byte, l)
	copy(out, ctx.Memory[o+32:o+32+l])
	return Value{Kind: ValueBytes, Bytes: out}, nil
}
