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

// Package srcmap decodes the compressed source mappings emitted by solc.
//
// A source map is a ";"-separated list of up to four ":"-separated fields,
// start:length:file:jump, one record per instruction. Empty fields inherit
// the value of the previous record and the literal "-1" clears a field.
package srcmap

import (
	"fmt"
	"strconv"
	"strings"
)

// Op classifies the jump annotation of a mapping.
type Op byte

const (
	// OpNone marks a regular instruction ("-").
	OpNone Op = iota
	// OpInput marks a jump into a function ("i").
	OpInput
	// OpOutput marks a return out of a function ("o").
	OpOutput
)

func (o Op) String() string {
	switch o {
	case OpInput:
		return "i"
	case OpOutput:
		return "o"
	default:
		return "-"
	}
}

// Mapping is the source span covered by a single instruction. FileIndex is
// -1 when the instruction maps to no input file (compiler generated code).
type Mapping struct {
	Start     uint32
	Length    uint32
	FileIndex int32
	Op        Op
}

// HasFile reports whether the mapping refers to a known input file.
func (m Mapping) HasFile() bool { return m.FileIndex >= 0 }

// Map is a parsed source map, indexed by instruction ordinal.
type Map struct {
	mappings []Mapping
}

// Len returns the number of instruction mappings.
func (m *Map) Len() int { return len(m.mappings) }

// Find returns the mapping for the given instruction index.
func (m *Map) Find(instruction int) (Mapping, bool) {
	if instruction < 0 || instruction >= len(m.mappings) {
		return Mapping{}, false
	}
	return m.mappings[instruction], true
}

// Parse decodes a compressed source map. The first record must carry both
// start and length; every later record inherits unset fields from its
// predecessor.
func Parse(input string) (*Map, error) {
	var (
		mappings []Mapping
		start    = int64(-1)
		length   = int64(-1)
		file     = int64(-1)
		op       = OpNone
	)
	for i, record := range strings.Split(input, ";") {
		fields := strings.Split(record, ":")

		if err := inherit(fields, 0, &start); err != nil {
			return nil, fmt.Errorf("record %d: start: %w", i, err)
		}
		if err := inherit(fields, 1, &length); err != nil {
			return nil, fmt.Errorf("record %d: length: %w", i, err)
		}
		if err := inherit(fields, 2, &file); err != nil {
			return nil, fmt.Errorf("record %d: file index: %w", i, err)
		}
		if len(fields) > 3 && fields[3] != "" {
			switch fields[3] {
			case "i":
				op = OpInput
			case "o":
				op = OpOutput
			case "-":
				op = OpNone
			default:
				return nil, fmt.Errorf("record %d: bad operation: %q", i, fields[3])
			}
		}
		if start < 0 {
			return nil, fmt.Errorf("record %d: missing start", i)
		}
		if length < 0 {
			return nil, fmt.Errorf("record %d: missing length", i)
		}
		mappings = append(mappings, Mapping{
			Start:     uint32(start),
			Length:    uint32(length),
			FileIndex: int32(file),
			Op:        op,
		})
	}
	return &Map{mappings: mappings}, nil
}

// inherit decodes field n of a record into current, leaving it untouched
// when the field is absent or empty. "-1" resets the field.
func inherit(fields []string, n int, current *int64) error {
	if n >= len(fields) || fields[n] == "" {
		return nil
	}
	if fields[n] == "-1" {
		*current = -1
		return nil
	}
	value, err := strconv.ParseUint(fields[n], 10, 32)
	if err != nil {
		return fmt.Errorf("bad field %q: %w", fields[n], err)
	}
	*current = int64(value)
	return nil
}
