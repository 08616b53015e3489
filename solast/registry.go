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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Function is a function definition indexed by the registry.
type Function struct {
	Src  Src
	Name string
}

// Enum is an enum definition and its variants in declaration order.
type Enum struct {
	Name     string
	Variants []string
}

type spanKey struct {
	start  uint32
	length uint32
}

// Registry holds the derived indices of one compilation unit's AST. It is
// read-only after construction and may be shared across call frames.
type Registry struct {
	root       *Node
	index      map[spanKey]*Node
	statements mapset.Set[Src]
	functions  map[int32][]*Function
	enums      map[string]*Enum
}

// NewRegistry builds the span, statement, function and enum indices in a
// single pre-order walk. The first node inserted for a span wins, so outer
// nodes shadow inner nodes sharing the same span.
func NewRegistry(root *Node) *Registry {
	r := &Registry{
		root:       root,
		index:      make(map[spanKey]*Node),
		statements: mapset.NewThreadUnsafeSet[Src](),
		functions:  make(map[int32][]*Function),
		enums:      make(map[string]*Enum),
	}
	r.walk(root)
	for _, functions := range r.functions {
		sort.Slice(functions, func(i, j int) bool {
			return functions[i].Src.Start < functions[j].Src.Start
		})
	}
	return r
}

func (r *Registry) walk(node *Node) {
	if node == nil {
		return
	}
	key := spanKey{start: node.Src.Start, length: node.Src.Length}
	if _, ok := r.index[key]; !ok {
		r.index[key] = node
	}
	r.statements.Add(node.Src)

	switch node.Name {
	case KindFunctionDefinition:
		fn := &Function{Src: node.Src, Name: node.Attributes.Name}
		r.functions[node.Src.FileIndex] = append(r.functions[node.Src.FileIndex], fn)
	case KindEnumDefinition:
		enum := &Enum{Name: node.Attributes.Name}
		if node.Attributes.CanonicalName != "" {
			enum.Name = node.Attributes.CanonicalName
		}
		for _, child := range node.Children {
			if child.Name == KindEnumValue {
				enum.Variants = append(enum.Variants, child.Attributes.Name)
			}
		}
		r.enums[enum.Name] = enum
	}

	for _, child := range node.Children {
		r.walk(child)
	}
}

// Find returns the node registered for the exact span, if any.
func (r *Registry) Find(start, length uint32) *Node {
	if r == nil {
		return nil
	}
	return r.index[spanKey{start: start, length: length}]
}

// FindFunction returns the function definition strictly enclosing the span
// starting at start with the given length, within the given file.
func (r *Registry) FindFunction(file int32, start, length uint32) *Function {
	if r == nil {
		return nil
	}
	functions := r.functions[file]
	// predecessor by start position
	i := sort.Search(len(functions), func(i int) bool {
		return functions[i].Src.Start > start
	})
	for i--; i >= 0; i-- {
		fn := functions[i]
		if start+length <= fn.Src.End() {
			return fn
		}
	}
	return nil
}

// Enum returns the enum definition registered under the given canonical
// name.
func (r *Registry) Enum(name string) *Enum {
	if r == nil {
		return nil
	}
	return r.enums[name]
}

// Statements returns the set of every unique source span in the unit. The
// set is owned by the registry; callers must not mutate it.
func (r *Registry) Statements() mapset.Set[Src] {
	return r.statements
}
