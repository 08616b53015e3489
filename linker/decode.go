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

package linker

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
)

// swarmPrefix and swarmSuffix delimit the metadata trailer solc appends to
// contract bytecode. The trailer is 43 bytes: a 9 byte prefix, a 32 byte
// swarm hash and a 2 byte suffix.
const (
	swarmPrefix  = "a165627a7a72305820"
	swarmSuffix  = "0029"
	swarmHexLen  = 86
	placeholder  = "__"
	unlinkedHex  = 40
	unlinkedSize = 20
)

// HexError is returned when the input contains a non-hexadecimal character.
type HexError struct {
	Pos int
}

func (e *HexError) Error() string {
	return fmt.Sprintf("bad hex in section: #%d", e.Pos)
}

// TruncatedPushError is returned when a push instruction runs past the end
// of the input.
type TruncatedPushError struct {
	Pos int
}

func (e *TruncatedPushError) Error() string {
	return fmt.Sprintf("not enough input for push: #%d", e.Pos)
}

// SectionKind discriminates the sections produced by a Decoder.
type SectionKind byte

const (
	// KindInstruction is a regular instruction without payload.
	KindInstruction SectionKind = iota
	// KindPush is a push instruction and its payload.
	KindPush
	// KindBadInstruction is a byte for which no opcode is defined. It is
	// preserved verbatim and faults at run time.
	KindBadInstruction
	// KindSwarmHash is the metadata trailer, opaque to execution.
	KindSwarmHash
)

// Section is a single decoded span of contract bytecode.
type Section struct {
	Kind SectionKind
	// Op is the decoded opcode for instruction and push sections.
	Op vm.OpCode
	// Byte is the raw instruction byte.
	Byte byte
	// Payload holds decoded push payload bytes, or the raw trailer bytes
	// for a swarm hash section.
	Payload []byte
	// Unlinked holds the 40 character link placeholder when the push is a
	// library slot. Payload is nil in that case.
	Unlinked string
}

// Decoder walks hex encoded contract bytecode section by section. It is the
// shared front end of Link and DecodeOffsets.
type Decoder struct {
	input   string
	pos     int // position in decoded bytes, for error reporting
	section Section
	err     error
	done    bool
}

// NewDecoder creates a decoder for the given hex encoded bytecode.
func NewDecoder(code string) *Decoder {
	return &Decoder{input: strings.TrimSpace(code)}
}

// Next advances to the next section, returning false at the end of input or
// on error.
func (d *Decoder) Next() bool {
	if d.err != nil || d.done || len(d.input) == 0 {
		return false
	}
	// The trailer is only recognized when it is exactly what remains.
	if len(d.input) == swarmHexLen && strings.HasPrefix(d.input, swarmPrefix) && strings.HasSuffix(d.input, swarmSuffix) {
		raw, ok := decodeHex(d.input)
		if !ok {
			d.err = &HexError{Pos: d.pos}
			return false
		}
		d.section = Section{Kind: KindSwarmHash, Payload: raw}
		d.input = ""
		d.done = true
		return true
	}

	b, ok := d.takeByte()
	if !ok {
		return false
	}
	op := vm.OpCode(b)
	if !opDefined(op) {
		d.section = Section{Kind: KindBadInstruction, Byte: b}
		return true
	}
	if !op.IsPush() || op == vm.PUSH0 {
		d.section = Section{Kind: KindInstruction, Op: op, Byte: b}
		return true
	}

	size := int(op) - int(vm.PUSH0)
	raw, ok := d.takeRaw(size)
	if !ok {
		d.err = &TruncatedPushError{Pos: d.pos}
		return false
	}
	if len(raw) == unlinkedHex && strings.HasPrefix(raw, placeholder) {
		d.section = Section{Kind: KindPush, Op: op, Byte: b, Unlinked: raw}
		return true
	}
	payload, ok := decodeHex(raw)
	if !ok {
		d.err = &HexError{Pos: d.pos}
		return false
	}
	d.pos += len(payload)
	d.section = Section{Kind: KindPush, Op: op, Byte: b, Payload: payload}
	return true
}

// Section returns the current section.
func (d *Decoder) Section() Section { return d.section }

// Err returns any error encountered while decoding.
func (d *Decoder) Err() error { return d.err }

// takeByte consumes one byte (two hex characters) from the input.
func (d *Decoder) takeByte() (byte, bool) {
	if len(d.input) < 2 {
		if len(d.input) == 1 {
			d.err = &HexError{Pos: d.pos + 1}
		}
		return 0, false
	}
	d.pos++
	hi := hexNibble(d.input[0])
	lo := hexNibble(d.input[1])
	if hi < 0 || lo < 0 {
		d.err = &HexError{Pos: d.pos}
		return 0, false
	}
	d.input = d.input[2:]
	return byte(hi<<4 | lo), true
}

// takeRaw consumes size bytes worth of hex characters without decoding them.
func (d *Decoder) takeRaw(size int) (string, bool) {
	n := size * 2
	if len(d.input) < n {
		return "", false
	}
	out := d.input[:n]
	d.input = d.input[n:]
	return out, true
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

func decodeHex(input string) ([]byte, bool) {
	if len(input)%2 != 0 {
		return nil, false
	}
	out := make([]byte, 0, len(input)/2)
	for i := 0; i < len(input); i += 2 {
		hi := hexNibble(input[i])
		lo := hexNibble(input[i+1])
		if hi < 0 || lo < 0 {
			return nil, false
		}
		out = append(out, byte(hi<<4|lo))
	}
	return out, true
}

// opDefined reports whether the byte decodes to a known opcode. The opcode
// table only exposes this through String, which renders undefined opcodes
// as "opcode 0x.. not defined".
func opDefined(op vm.OpCode) bool {
	return !strings.HasPrefix(op.String(), "opcode")
}
