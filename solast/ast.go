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

// Package solast indexes the legacy AST emitted by solc and decodes typed
// expressions against a running EVM stack, memory and calldata.
package solast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Node kinds appearing in the legacy solc AST that the registry gives
// special treatment. Every other kind is carried verbatim in Node.Name.
const (
	KindSourceUnit          = "SourceUnit"
	KindContractDefinition  = "ContractDefinition"
	KindFunctionDefinition  = "FunctionDefinition"
	KindEnumDefinition      = "EnumDefinition"
	KindEnumValue           = "EnumValue"
	KindIdentifier          = "Identifier"
	KindIndexAccess         = "IndexAccess"
	KindMemberAccess        = "MemberAccess"
	KindAssignment          = "Assignment"
	KindFunctionCall        = "FunctionCall"
	KindExpressionStatement = "ExpressionStatement"
	KindVariableDeclaration = "VariableDeclaration"
)

// Src is an AST source span, "start:length:file" in the compiler output. It
// doubles as the identity key for the span index and the coverage set.
type Src struct {
	Start     uint32
	Length    uint32
	FileIndex int32
}

func (s Src) String() string {
	return fmt.Sprintf("%d:%d:%d", s.Start, s.Length, s.FileIndex)
}

// End returns the byte position one past the span.
func (s Src) End() uint32 { return s.Start + s.Length }

// UnmarshalJSON decodes the "start:length:file" string form.
func (s *Src) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 3 {
		return fmt.Errorf("bad src %q", raw)
	}
	start, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return fmt.Errorf("bad src start %q: %w", raw, err)
	}
	length, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return fmt.Errorf("bad src length %q: %w", raw, err)
	}
	file, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return fmt.Errorf("bad src file index %q: %w", raw, err)
	}
	*s = Src{Start: uint32(start), Length: uint32(length), FileIndex: int32(file)}
	return nil
}

// Attributes is the variant specific payload of a node. The legacy AST
// stores these loosely typed; only the fields the registry consumes are
// decoded.
type Attributes struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Value         string  `json:"value"`
	MemberName    string  `json:"member_name"`
	CanonicalName string  `json:"canonicalName"`
	RefDecl       *uint32 `json:"referencedDeclaration"`
}

// Node is one element of the AST. Nodes are immutable after parse; children
// are shared between the tree and the registry indices.
type Node struct {
	Name       string     `json:"name"`
	ID         uint32     `json:"id"`
	Src        Src        `json:"src"`
	Attributes Attributes `json:"attributes"`
	Children   []*Node    `json:"children"`
}

// Parse decodes a legacy solc AST document.
func Parse(input []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(input, &root); err != nil {
		return nil, fmt.Errorf("failed to parse AST: %w", err)
	}
	return &root, nil
}
