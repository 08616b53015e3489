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

import "strings"

// ExprKind enumerates the value-carrying expression shapes extracted from
// the AST.
type ExprKind byte

const (
	ExprIdentifier ExprKind = iota
	ExprIndexAccess
	ExprMemberAccess
	ExprFunctionCall
)

// Expr is a decoded expression, used as the display key of a call frame's
// variable bindings.
type Expr struct {
	Kind ExprKind
	// Name is the identifier or the called function's name.
	Name string
	// Key and Value render as "key[value]" for index access and
	// "key.value" for member access.
	Key   string
	Value string
	// Args are the rendered call arguments for ExprFunctionCall.
	Args []string
}

func (e Expr) String() string {
	switch e.Kind {
	case ExprIndexAccess:
		return e.Key + "[" + e.Value + "]"
	case ExprMemberAccess:
		return e.Key + "." + e.Value
	case ExprFunctionCall:
		return e.Name + "(" + strings.Join(e.Args, ", ") + ")"
	default:
		return e.Name
	}
}

// DecodeExpr pattern-matches a node into an expression and its solc type
// string. Nodes that carry no value (control flow, declarations) return
// ok=false and are silently skipped by callers.
//
// Assignments drop to their left hand side identifier, accesses recurse one
// level into identifier children, and function calls collect the first
// child as callee and the rest as arguments.
func DecodeExpr(node *Node) (Expr, string, bool) {
	switch node.Name {
	case KindIdentifier:
		return Expr{Kind: ExprIdentifier, Name: node.Attributes.Value}, node.Attributes.Type, true

	case KindAssignment:
		if len(node.Children) == 0 {
			return Expr{}, "", false
		}
		lhs := node.Children[0]
		if lhs.Name != KindIdentifier {
			return Expr{}, "", false
		}
		return Expr{Kind: ExprIdentifier, Name: lhs.Attributes.Value}, lhs.Attributes.Type, true

	case KindIndexAccess:
		if len(node.Children) < 2 {
			return Expr{}, "", false
		}
		key, value := node.Children[0], node.Children[1]
		if key.Name != KindIdentifier || value.Name != KindIdentifier {
			return Expr{}, "", false
		}
		expr := Expr{
			Kind:  ExprIndexAccess,
			Key:   key.Attributes.Value,
			Value: value.Attributes.Value,
		}
		return expr, node.Attributes.Type, true

	case KindMemberAccess:
		if len(node.Children) == 0 {
			return Expr{}, "", false
		}
		key := node.Children[0]
		if key.Name != KindIdentifier {
			return Expr{}, "", false
		}
		expr := Expr{
			Kind:  ExprMemberAccess,
			Key:   key.Attributes.Value,
			Value: node.Attributes.MemberName,
		}
		return expr, node.Attributes.Type, true

	case KindFunctionCall:
		if len(node.Children) == 0 {
			return Expr{}, "", false
		}
		callee := node.Children[0]
		if callee.Name != KindIdentifier {
			return Expr{}, "", false
		}
		expr := Expr{Kind: ExprFunctionCall, Name: callee.Attributes.Value}
		for _, arg := range node.Children[1:] {
			if sub, _, ok := DecodeExpr(arg); ok {
				expr.Args = append(expr.Args, sub.String())
			}
		}
		return expr, node.Attributes.Type, true
	}
	return Expr{}, "", false
}
