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
	"strings"

	"github.com/PrimaBlock/parables/linker"
)

// LocationMatcher tests whether a diagnostic location matches an expected
// source position.
type LocationMatcher interface {
	MatchesLocation(object *linker.Object, function string) bool
}

// StatementMatcher tests whether any of a diagnostic's source lines matches
// an expected statement.
type StatementMatcher interface {
	MatchesLines(lines []string) bool
}

// Matcher matches a location by path, item and function. Unset components
// match anything. Setters return modified copies so a matcher can be
// shared and refined.
type Matcher struct {
	path     string
	item     string
	function string
}

// Match creates a matcher that matches every location.
func Match() Matcher {
	return Matcher{}
}

// Path returns a copy expecting the given source path.
func (m Matcher) Path(path string) Matcher {
	m.path = path
	return m
}

// Item returns a copy expecting the given contract or library name.
func (m Matcher) Item(item string) Matcher {
	m.item = item
	return m
}

// Function returns a copy expecting the given function name.
func (m Matcher) Function(function string) Matcher {
	m.function = function
	return m
}

func (m Matcher) String() string {
	parts := [3]string{"*", "*", "*"}
	if m.path != "" {
		parts[0] = m.path
	}
	if m.item != "" {
		parts[1] = m.item
	}
	if m.function != "" {
		parts[2] = m.function
	}
	return strings.Join(parts[:], ":")
}

// MatchesLocation implements LocationMatcher.
func (m Matcher) MatchesLocation(object *linker.Object, function string) bool {
	if m.path != "" && (object == nil || object.Path != m.path) {
		return false
	}
	if m.item != "" && (object == nil || object.Item != m.item) {
		return false
	}
	if m.function != "" && function != m.function {
		return false
	}
	return true
}

// Location parses a string form location matcher. One component matches the
// function, two match "item:function" and three match
// "path:item:function".
func Location(s string) Matcher {
	parts := strings.SplitN(s, ":", 3)
	switch len(parts) {
	case 1:
		return Match().Function(parts[0])
	case 2:
		return Match().Item(parts[0]).Function(parts[1])
	default:
		return Match().Path(parts[0]).Item(parts[1]).Function(parts[2])
	}
}

// Statement matches a diagnostic whose source lines contain the statement,
// compared with surrounding whitespace stripped.
type Statement string

// MatchesLines implements StatementMatcher.
func (s Statement) MatchesLines(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) == string(s) {
			return true
		}
	}
	return false
}
