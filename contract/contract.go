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

// Package contract loads solc combined-json output and exposes the typed
// calling surface for the contracts inside it.
//
// The loader consumes the output of
//
//	solc --combined-json abi,bin,srcmap,srcmap-runtime,bin-runtime,ast
//
// and yields one Contract per "path:name" entry, each carrying its ABI,
// bytecode, and source maps. Constructors, methods, and events built from a
// Contract plug straight into the evm package.
package contract

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/PrimaBlock/parables/linker"
	"github.com/PrimaBlock/parables/solast"
)

type contractFields struct {
	ABI           json.RawMessage `json:"abi"`
	Bin           string          `json:"bin"`
	SrcMap        string          `json:"srcmap"`
	BinRuntime    string          `json:"bin-runtime"`
	SrcMapRuntime string          `json:"srcmap-runtime"`
}

type sourceFields struct {
	AST json.RawMessage `json:"AST"`
}

type combinedOutput struct {
	Contracts  map[string]contractFields `json:"contracts"`
	Sources    map[string]sourceFields   `json:"sources"`
	SourceList []string                  `json:"sourceList"`
	Version    string                    `json:"version"`
}

// Contract is one compiled contract out of a combined-json output.
type Contract struct {
	object linker.Object
	abi    abi.ABI
	fields contractFields
}

// Object returns the compilation unit and item naming this contract.
func (c *Contract) Object() linker.Object { return c.object }

// ABI returns the parsed contract ABI.
func (c *Contract) ABI() abi.ABI { return c.abi }

// Combined holds every contract and source of one combined-json output.
type Combined struct {
	contracts  map[string]*Contract
	sources    map[string]sourceFields
	sourceList []string
}

// LoadCombined parses combined-json output from a reader.
func LoadCombined(r io.Reader) (*Combined, error) {
	var output combinedOutput
	if err := json.NewDecoder(r).Decode(&output); err != nil {
		return nil, fmt.Errorf("failed to decode combined output: %w", err)
	}

	contracts := make(map[string]*Contract, len(output.Contracts))
	for key, fields := range output.Contracts {
		path, item, ok := strings.Cut(key, ":")
		if !ok {
			return nil, fmt.Errorf("%s: expected a path:name contract key", key)
		}

		parsed, err := parseABI(fields.ABI)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to parse abi: %w", key, err)
		}

		contracts[key] = &Contract{
			object: linker.Object{Path: path, Item: item},
			abi:    parsed,
			fields: fields,
		}
	}

	return &Combined{
		contracts:  contracts,
		sources:    output.Sources,
		sourceList: output.SourceList,
	}, nil
}

// OpenCombined parses a combined-json file on disk.
func OpenCombined(path string) (*Combined, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCombined(f)
}

// parseABI accepts both the abi forms solc has emitted over time, a JSON
// array and a JSON string holding one.
func parseABI(raw json.RawMessage) (abi.ABI, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return abi.ABI{}, err
		}
	}
	return abi.JSON(strings.NewReader(text))
}

// Contract returns the contract for a compilation unit and item.
func (c *Combined) Contract(path, item string) (*Contract, error) {
	key := path + ":" + item
	contract, ok := c.contracts[key]
	if !ok {
		return nil, fmt.Errorf("no contract %s in combined output", key)
	}
	return contract, nil
}

// SourceList returns the compiler's file index order.
func (c *Combined) SourceList() []string {
	return append([]string(nil), c.sourceList...)
}

// Register wires the source list and every source AST into a linker so
// traces through these contracts resolve to functions and statements.
func (c *Combined) Register(l *linker.Linker) error {
	l.RegisterSourceList(c.sourceList)

	for path, source := range c.sources {
		if len(source.AST) == 0 {
			continue
		}
		root, err := solast.Parse(source.AST)
		if err != nil {
			return fmt.Errorf("%s: failed to parse ast: %w", path, err)
		}
		l.RegisterAST(path, solast.NewRegistry(root))
	}
	return nil
}

// Constructor carries a contract's deployment bytecode and encoded
// arguments. It satisfies the evm deployment surface.
type Constructor struct {
	contract *Contract
	args     []any
}

// NewConstructor builds a deployable constructor for the contract.
func (c *Contract) NewConstructor(args ...any) Constructor {
	return Constructor{contract: c, args: args}
}

func (c Constructor) Object() linker.Object    { return c.contract.object }
func (c Constructor) Bin() string              { return c.contract.fields.Bin }
func (c Constructor) SourceMap() string        { return c.contract.fields.SrcMap }
func (c Constructor) RuntimeBin() string       { return c.contract.fields.BinRuntime }
func (c Constructor) RuntimeSourceMap() string { return c.contract.fields.SrcMapRuntime }

// EncodeArgs packs the constructor arguments.
func (c Constructor) EncodeArgs(l *linker.Linker) ([]byte, error) {
	if len(c.contract.abi.Constructor.Inputs) == 0 && len(c.args) == 0 {
		return nil, nil
	}
	args, err := resolveArgs(l, c.args)
	if err != nil {
		return nil, err
	}
	return c.contract.abi.Pack("", args...)
}

// Method is a bound contract function whose output decodes into T. Use
// struct{} for functions without return values.
type Method[T any] struct {
	contract *Contract
	name     string
	args     []any
}

// NewMethod binds a contract function by its ABI name.
func NewMethod[T any](c *Contract, name string, args ...any) Method[T] {
	return Method[T]{contract: c, name: name, args: args}
}

// EncodeInput packs the selector and arguments for the call.
func (m Method[T]) EncodeInput(l *linker.Linker) ([]byte, error) {
	if _, ok := m.contract.abi.Methods[m.name]; !ok {
		return nil, fmt.Errorf("no method %s on %s", m.name, m.contract.object)
	}
	args, err := resolveArgs(l, m.args)
	if err != nil {
		return nil, err
	}
	return m.contract.abi.Pack(m.name, args...)
}

// DecodeOutput unpacks the raw return data into T.
func (m Method[T]) DecodeOutput(output []byte) (T, error) {
	var zero T

	values, err := m.contract.abi.Unpack(m.name, output)
	if err != nil {
		return zero, err
	}

	switch len(values) {
	case 0:
		return zero, nil
	case 1:
		if value, ok := values[0].(T); ok {
			return value, nil
		}
	}
	// Multiple outputs, or a caller that wants them raw.
	if value, ok := any(values).(T); ok {
		return value, nil
	}
	return zero, fmt.Errorf("%s: cannot convert output %v to %T", m.name, values, zero)
}

// resolveArgs substitutes any linker.Object argument with its deployed
// address so contracts and libraries can be passed around by name.
func resolveArgs(l *linker.Linker, args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		object, ok := arg.(linker.Object)
		if !ok {
			out[i] = arg
			continue
		}
		address, ok := l.AddressOf(object.Item)
		if !ok {
			return nil, fmt.Errorf("%v: not deployed", object)
		}
		out[i] = address
	}
	return out, nil
}

// Event is a bound contract event whose log entries decode into the
// struct T, with indexed parameters pulled out of the topics.
type Event[T any] struct {
	contract *Contract
	name     string
}

// NewEvent binds a contract event by its ABI name.
func NewEvent[T any](c *Contract, name string) Event[T] {
	return Event[T]{contract: c, name: name}
}

// Topic returns the event signature hash, topic zero of its log entries.
func (e Event[T]) Topic() common.Hash {
	return e.contract.abi.Events[e.name].ID
}

// ParseLog decodes one log entry into T.
func (e Event[T]) ParseLog(entry *types.Log) (T, error) {
	var out T

	event, ok := e.contract.abi.Events[e.name]
	if !ok {
		return out, fmt.Errorf("no event %s on %s", e.name, e.contract.object)
	}

	if len(entry.Data) > 0 {
		if err := e.contract.abi.UnpackIntoInterface(&out, e.name, entry.Data); err != nil {
			return out, err
		}
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) == 0 {
		return out, nil
	}
	if err := abi.ParseTopics(&out, indexed, entry.Topics[1:]); err != nil {
		return out, err
	}
	return out, nil
}
