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
	"errors"
	"fmt"

	"github.com/PrimaBlock/parables/linker"
)

// LineInfo locates a statement in its source file. Line is zero based;
// Lines holds the text of every source line the statement touches.
type LineInfo struct {
	Path     string
	Object   *linker.Object
	Function string
	Line     int
	Lines    []string
}

// String renders "path:line:function" with a one based line number. An
// unknown function renders as "?".
func (l *LineInfo) String() string {
	function := l.Function
	if function == "" {
		function = "?"
	}
	return fmt.Sprintf("%s:%d:%s", l.Path, l.Line+1, function)
}

var errSpanOutOfRange = errors.New("span not contained in file")

// FindLines extracts the full source lines overlapping the byte span
// [start, end), along with the zero based number of the first one.
func FindLines(source []byte, start, end int) ([]string, int, error) {
	if start >= len(source) || end > len(source) || start >= end {
		return nil, 0, errSpanOutOfRange
	}

	var (
		line      int
		lineStart int
		firstLine = -1
		lines     []string
	)
	flush := func(lineEnd int) {
		if lineStart < end && lineEnd > start {
			if firstLine < 0 {
				firstLine = line
			}
			lines = append(lines, string(source[lineStart:lineEnd]))
		}
	}
	for i, b := range source {
		if b != '\n' {
			continue
		}
		flush(i)
		line++
		lineStart = i + 1
	}
	flush(len(source))
	if firstLine < 0 {
		return nil, 0, errSpanOutOfRange
	}
	return lines, firstLine, nil
}
