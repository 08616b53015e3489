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

package trace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/PrimaBlock/parables/solast"
)

// ErrorKind discriminates error records.
type ErrorKind byte

const (
	// KindRoot wraps the sub errors of a whole transaction.
	KindRoot ErrorKind = iota
	// KindError is a vm error raised inside one call frame.
	KindError
)

// Binding is one expression and the value it held.
type Binding struct {
	Expr  solast.Expr
	Value solast.Value
}

// ErrorInfo is the structured diagnostic of a failed call frame. Records
// form a tree mirroring the nesting of the call frames that failed.
type ErrorInfo struct {
	Kind ErrorKind
	// Err is the vm error for KindError records.
	Err error
	// Reverted marks an explicit revert, as opposed to another vm error.
	Reverted bool
	// LineInfo is the resolved source location, when the frame had one.
	LineInfo *LineInfo
	Subs     []*ErrorInfo
	// Variables are the expression bindings accumulated on the statement
	// that failed, sorted by expression for stable display.
	Variables []Binding
}

// NewRoot wraps the collected frame errors of one transaction.
func NewRoot(subs []*ErrorInfo) *ErrorInfo {
	return &ErrorInfo{Kind: KindRoot, Subs: subs}
}

// IsReverted reports whether this record or any sub record is an explicit
// revert.
func (e *ErrorInfo) IsReverted() bool {
	if e.Reverted {
		return true
	}
	for _, sub := range e.Subs {
		if sub.IsReverted() {
			return true
		}
	}
	return false
}

// IsFailedWith reports whether any record in the tree failed at the given
// location on the given statement.
func (e *ErrorInfo) IsFailedWith(location LocationMatcher, stmt StatementMatcher) bool {
	if e.LineInfo != nil &&
		location.MatchesLocation(e.LineInfo.Object, e.LineInfo.Function) &&
		stmt.MatchesLines(e.LineInfo.Lines) {
		return true
	}
	for _, sub := range e.Subs {
		if sub.IsFailedWith(location, stmt) {
			return true
		}
	}
	return false
}

func (e *ErrorInfo) String() string {
	var out strings.Builder
	e.format(&out)
	return out.String()
}

func (e *ErrorInfo) format(out *strings.Builder) {
	message := "Failed"
	if e.Kind == KindError && e.Err != nil {
		message = e.Err.Error()
	}
	if e.LineInfo != nil {
		fmt.Fprintf(out, "%s: %s\n", e.LineInfo, message)
		for i, line := range e.LineInfo.Lines {
			fmt.Fprintf(out, "%3d: %s\n", e.LineInfo.Line+i+1, line)
		}
	} else if e.Kind != KindRoot {
		fmt.Fprintf(out, "?:?: %s\n", message)
	}

	if len(e.Variables) > 0 {
		out.WriteString("Expressions:\n")
		table := tablewriter.NewWriter(out)
		table.SetBorder(false)
		table.SetColumnSeparator("=")
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, binding := range e.Variables {
			table.Append([]string{binding.Expr.String(), binding.Value.String()})
		}
		table.Render()
	}

	for _, sub := range e.Subs {
		sub.format(out)
	}
}

// sortBindings flattens a binding map into a slice sorted by rendered
// expression.
func sortBindings(variables map[string]Binding) []Binding {
	keys := make([]string, 0, len(variables))
	for key := range variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Binding, 0, len(keys))
	for _, key := range keys {
		out = append(out, variables[key])
	}
	return out
}
