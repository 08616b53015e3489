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

// Package linker decodes hex encoded contract bytecode, substitutes library
// placeholders with deployed addresses, and keeps the registry binding
// deployed addresses to their compilation units, source maps and ASTs.
package linker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/PrimaBlock/parables/solast"
	"github.com/PrimaBlock/parables/srcmap"
)

// UnlinkedItemError is returned when a placeholder names an item no address
// has been registered for.
type UnlinkedItemError struct {
	Item string
}

func (e *UnlinkedItemError) Error() string {
	return fmt.Sprintf("no object item to link named %q", e.Item)
}

// UnlinkedPathError is returned when a placeholder only carries a path and
// no address has been registered for it.
type UnlinkedPathError struct {
	Path string
}

func (e *UnlinkedPathError) Error() string {
	return fmt.Sprintf("no object path to link named %q", e.Path)
}

// Object names a contract or library inside a compilation unit.
type Object struct {
	// Path of the source file the object belongs to.
	Path string
	// Item is the name of the contract or library.
	Item string
}

func (o Object) String() string {
	return o.Path + ":" + o.Item
}

// Source carries everything needed to resolve a program counter back to a
// source span: the source map indexed by instruction, and the offset table
// bridging byte positions to instruction indices.
type Source struct {
	Object    Object
	SourceMap *srcmap.Map
	Offsets   map[uint64]int
}

// FindMapping resolves a program counter to its source mapping.
func (s *Source) FindMapping(pc uint64) (srcmap.Mapping, bool) {
	if s == nil {
		return srcmap.Mapping{}, false
	}
	offset, ok := s.Offsets[pc]
	if !ok {
		return srcmap.Mapping{}, false
	}
	return s.SourceMap.Find(offset)
}

// AddressInfo is the tracing information known about a deployed address.
type AddressInfo struct {
	Source *Source
	AST    *solast.Registry
}

// Linker resolves library placeholders and records the binding between
// deployed addresses and their sources. Safe for concurrent use; clones
// obtained through Copy are fully independent.
type Linker struct {
	mu              sync.Mutex
	addressToObject map[common.Address]Object
	itemToAddress   map[string]common.Address
	pathToAddress   map[string]common.Address
	sources         map[Object]*Source
	runtimeSources  map[Object]*Source
	astByPath       map[string]*solast.Registry
	sourceList      []string
}

// New constructs an empty linker.
func New() *Linker {
	return &Linker{
		addressToObject: make(map[common.Address]Object),
		itemToAddress:   make(map[string]common.Address),
		pathToAddress:   make(map[string]common.Address),
		sources:         make(map[Object]*Source),
		runtimeSources:  make(map[Object]*Source),
		astByPath:       make(map[string]*solast.Registry),
	}
}

// Copy returns an independent clone of the linker. Sources and AST
// registries are immutable after registration and are shared.
func (l *Linker) Copy() *Linker {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := New()
	for k, v := range l.addressToObject {
		out.addressToObject[k] = v
	}
	for k, v := range l.itemToAddress {
		out.itemToAddress[k] = v
	}
	for k, v := range l.pathToAddress {
		out.pathToAddress[k] = v
	}
	for k, v := range l.sources {
		out.sources[k] = v
	}
	for k, v := range l.runtimeSources {
		out.runtimeSources[k] = v
	}
	for k, v := range l.astByPath {
		out.astByPath[k] = v
	}
	out.sourceList = append([]string(nil), l.sourceList...)
	return out
}

// RegisterObject binds a deployed address to an object.
func (l *Linker) RegisterObject(object Object, address common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addressToObject[address] = object
	l.itemToAddress[object.Item] = address
	l.pathToAddress[object.Path] = address
}

// RegisterSource records the deploy time source of an object.
func (l *Linker) RegisterSource(object Object, source *Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[object] = source
}

// RegisterRuntimeSource records the runtime source of an object, looked up
// for every non-creation call frame.
func (l *Linker) RegisterRuntimeSource(object Object, source *Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runtimeSources[object] = source
}

// RegisterAST records the AST registry of a source file.
func (l *Linker) RegisterAST(path string, registry *solast.Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.astByPath[path] = registry
}

// RegisterSourceList records the file list used to resolve source map file
// indices back to paths.
func (l *Linker) RegisterSourceList(sourceList []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sourceList = append([]string(nil), sourceList...)
}

// FindFile resolves a source map file index to a path.
func (l *Linker) FindFile(index int32) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || int(index) >= len(l.sourceList) {
		return "", false
	}
	return l.sourceList[index], true
}

// AddressOf looks up the deployed address of an item.
func (l *Linker) AddressOf(item string) (common.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	address, ok := l.itemToAddress[item]
	return address, ok
}

// ObjectAt looks up the object deployed at an address.
func (l *Linker) ObjectAt(address common.Address) (Object, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	object, ok := l.addressToObject[address]
	return object, ok
}

// RuntimeInfo resolves the runtime source and AST for a deployed address.
// Unknown addresses yield an empty AddressInfo; tracing then degrades to
// locationless diagnostics.
func (l *Linker) RuntimeInfo(address common.Address) AddressInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	var info AddressInfo
	object, ok := l.addressToObject[address]
	if !ok {
		return info
	}
	info.Source = l.runtimeSources[object]
	info.AST = l.astByPath[object.Path]
	return info
}

// FindAST resolves the AST registry for a deployed address.
func (l *Linker) FindAST(address common.Address) *solast.Registry {
	l.mu.Lock()
	defer l.mu.Unlock()
	object, ok := l.addressToObject[address]
	if !ok {
		return nil
	}
	return l.astByPath[object.Path]
}

// FindASTByObject resolves the AST registry for an object.
func (l *Linker) FindASTByObject(object Object) *solast.Registry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.astByPath[object.Path]
}

// Source builds the tracing source for an object from its hex bytecode and
// compressed source map.
func (l *Linker) Source(object Object, bin, sourceMap string) (*Source, error) {
	parsed, err := srcmap.Parse(sourceMap)
	if err != nil {
		return nil, fmt.Errorf("%v: failed to decode source map: %w", object, err)
	}
	offsets, err := l.DecodeOffsets(bin)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", object, err)
	}
	return &Source{Object: object, SourceMap: parsed, Offsets: offsets}, nil
}

// DecodeOffsets walks the bytecode and produces the table mapping byte
// positions (program counters) to instruction indices. Push payloads and
// unlinked slots advance the byte position but not the instruction index.
func (l *Linker) DecodeOffsets(code string) (map[uint64]int, error) {
	out := make(map[uint64]int)

	var (
		pos         uint64
		instruction int
	)
	out[pos] = instruction

	d := NewDecoder(code)
	for d.Next() {
		section := d.Section()
		switch section.Kind {
		case KindInstruction, KindBadInstruction:
			pos++
			instruction++
		case KindPush:
			pos++
			instruction++
			if section.Unlinked != "" {
				pos += unlinkedSize
			} else {
				pos += uint64(len(section.Payload))
			}
		case KindSwarmHash:
			continue
		}
		out[pos] = instruction
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Link decodes the given bytecode, substituting every placeholder with the
// registered address of its target. Already linked bytecode round-trips to
// its raw byte decoding.
func (l *Linker) Link(code string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var output []byte

	d := NewDecoder(code)
	for d.Next() {
		section := d.Section()
		switch section.Kind {
		case KindInstruction, KindBadInstruction:
			output = append(output, section.Byte)
		case KindSwarmHash:
			output = append(output, section.Payload...)
		case KindPush:
			output = append(output, section.Byte)
			if section.Unlinked == "" {
				output = append(output, section.Payload...)
				continue
			}
			address, err := l.resolvePlaceholder(section.Unlinked)
			if err != nil {
				return nil, err
			}
			output = append(output, address.Bytes()...)
		}
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return output, nil
}

// resolvePlaceholder decodes a 40 character link slot. The interior is
// "path:item" padded with underscores; the item may be cut off entirely
// when the path fills the slot, in which case resolution falls back to the
// path.
func (l *Linker) resolvePlaceholder(slot string) (common.Address, error) {
	chunk := strings.Trim(slot, "_")

	path, item, hasItem := strings.Cut(chunk, ":")
	if hasItem && item != "" {
		address, ok := l.itemToAddress[item]
		if !ok {
			return common.Address{}, &UnlinkedItemError{Item: item}
		}
		return address, nil
	}

	address, ok := l.pathToAddress[path]
	if !ok {
		return common.Address{}, &UnlinkedPathError{Path: path}
	}
	return address, nil
}
