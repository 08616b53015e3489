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
	"fmt"
	"strings"
)

// Location is the data location of a reference type.
type Location byte

const (
	LocStorage Location = iota
	LocMemory
	LocCallData
)

func (l Location) String() string {
	switch l {
	case LocMemory:
		return "memory"
	case LocCallData:
		return "calldata"
	default:
		return "storage"
	}
}

// RefKind distinguishes pointers into a data location from direct
// references.
type RefKind byte

const (
	RefPointer RefKind = iota
	RefRef
)

func (k RefKind) String() string {
	if k == RefRef {
		return "ref"
	}
	return "pointer"
}

// TypeKind enumerates the classified solidity type of an expression.
type TypeKind byte

const (
	TypeUnknown TypeKind = iota
	TypeUint256
	TypeBool
	TypeAddress
	TypeBytes32
	TypeBytes
	TypeEnum
	TypeStruct
	TypeFunction
	TypeMapping
)

// Type is the classified form of a solc type string. It is a pure value;
// classification never fails, unrecognized strings become TypeUnknown.
type Type struct {
	Kind TypeKind
	// Raw is the original type string, kept for display and for the
	// Unknown fallback.
	Raw string
	// Name of the enum or struct for TypeEnum and TypeStruct.
	Name string
	// Loc is the data location for TypeBytes and TypeStruct.
	Loc Location
	// Ref distinguishes pointer from ref for TypeStruct.
	Ref RefKind
	// Key and Elem are the mapping key and value types for TypeMapping.
	Key  *Type
	Elem *Type
	// Signature is the raw signature for TypeFunction.
	Signature string
}

func (t Type) String() string {
	switch t.Kind {
	case TypeUint256:
		return "uint256"
	case TypeBool:
		return "bool"
	case TypeAddress:
		return "address"
	case TypeBytes32:
		return "bytes32"
	case TypeBytes:
		return "bytes " + t.Loc.String()
	case TypeEnum:
		return "enum " + t.Name
	case TypeStruct:
		return fmt.Sprintf("struct %s %s %s", t.Name, t.Loc, t.Ref)
	case TypeFunction:
		return t.Signature
	case TypeMapping:
		return fmt.Sprintf("mapping(%s => %s)", t.Key, t.Elem)
	default:
		return t.Raw
	}
}

// ParseType classifies a solc type string by recursive descent over the
// small grammar of mappings, structs, functions, enums and the primitive
// keywords. Anything unrecognized is carried as TypeUnknown.
func ParseType(raw string) *Type {
	input := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(input, "mapping(") && strings.HasSuffix(input, ")"):
		inner := input[len("mapping(") : len(input)-1]
		key, elem, ok := splitMapping(inner)
		if !ok {
			return &Type{Kind: TypeUnknown, Raw: raw}
		}
		return &Type{Kind: TypeMapping, Raw: raw, Key: ParseType(key), Elem: ParseType(elem)}

	case strings.HasPrefix(input, "struct "):
		fields := strings.Fields(input[len("struct "):])
		if len(fields) == 0 {
			return &Type{Kind: TypeUnknown, Raw: raw}
		}
		t := &Type{Kind: TypeStruct, Raw: raw, Name: fields[0], Loc: LocStorage, Ref: RefRef}
		if len(fields) > 1 {
			t.Loc = parseLocation(fields[1])
		}
		if len(fields) > 2 && fields[2] == "pointer" {
			t.Ref = RefPointer
		}
		return t

	case strings.HasPrefix(input, "function ") || strings.HasPrefix(input, "function("):
		return &Type{Kind: TypeFunction, Raw: raw, Signature: input}

	case strings.HasPrefix(input, "enum "):
		return &Type{Kind: TypeEnum, Raw: raw, Name: strings.TrimSpace(input[len("enum "):])}
	}

	fields := strings.Fields(input)
	if len(fields) == 0 {
		return &Type{Kind: TypeUnknown, Raw: raw}
	}
	switch fields[0] {
	case "uint256", "uint":
		return &Type{Kind: TypeUint256, Raw: raw}
	case "bool":
		return &Type{Kind: TypeBool, Raw: raw}
	case "address":
		return &Type{Kind: TypeAddress, Raw: raw}
	case "bytes32":
		return &Type{Kind: TypeBytes32, Raw: raw}
	case "bytes":
		t := &Type{Kind: TypeBytes, Raw: raw, Loc: LocStorage}
		if len(fields) > 1 {
			t.Loc = parseLocation(fields[1])
		}
		return t
	}
	return &Type{Kind: TypeUnknown, Raw: raw}
}

func parseLocation(word string) Location {
	switch word {
	case "memory":
		return LocMemory
	case "calldata":
		return LocCallData
	default:
		return LocStorage
	}
}

// splitMapping splits "K => V" at the top level, tolerating nested mapping
// values.
func splitMapping(inner string) (string, string, bool) {
	depth := 0
	for i := 0; i+2 <= len(inner); i++ {
		switch inner[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '=':
			if depth == 0 && inner[i+1] == '>' {
				return strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i+2:]), true
			}
		}
	}
	return "", "", false
}
