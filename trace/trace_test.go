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
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrimaBlock/parables/linker"
	"github.com/PrimaBlock/parables/solast"
)

const testSource = `contract Test {
  uint256 owner;
  function set(uint256 v) {
    owner = v;
    require(v == 0);
  }
}
`

// fakeScope is a captured machine state handed to the opcode hook.
type fakeScope struct {
	stack  []uint256.Int
	memory []byte
	input  []byte
}

func (s *fakeScope) MemoryData() []byte         { return s.memory }
func (s *fakeScope) StackData() []uint256.Int   { return s.stack }
func (s *fakeScope) Caller() common.Address     { return common.Address{} }
func (s *fakeScope) Address() common.Address    { return common.Address{} }
func (s *fakeScope) CallValue() *uint256.Int    { return new(uint256.Int) }
func (s *fakeScope) CallInput() []byte          { return s.input }
func (s *fakeScope) ContractCode() []byte       { return nil }

// span locates a snippet inside the test source.
func span(t *testing.T, snippet string) solast.Src {
	t.Helper()
	start := strings.Index(testSource, snippet)
	require.GreaterOrEqual(t, start, 0, "snippet %q not in source", snippet)
	return solast.Src{Start: uint32(start), Length: uint32(len(snippet))}
}

func srcNode(name string, src solast.Src, attributes solast.Attributes, children ...*solast.Node) *solast.Node {
	return &solast.Node{Name: name, Src: src, Attributes: attributes, Children: children}
}

// testHarness wires a linker, source and registry around the test contract,
// with three synthetic instructions: the assignment, the full expression
// statement, and the require call.
type testHarness struct {
	linker   *linker.Linker
	address  common.Address
	exprSpan solast.Src
	reqSpan  solast.Src
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "Test.sol")
	require.NoError(t, os.WriteFile(path, []byte(testSource), 0644))

	assignSpan := span(t, "owner = v")
	exprSpan := span(t, "owner = v;")
	reqSpan := span(t, "require(v == 0)")
	fnSpan := span(t, "function set(uint256 v) {\n    owner = v;\n    require(v == 0);\n  }")

	root := srcNode(solast.KindSourceUnit, solast.Src{Length: uint32(len(testSource))}, solast.Attributes{},
		srcNode(solast.KindContractDefinition, solast.Src{Length: uint32(len(testSource))}, solast.Attributes{Name: "Test"},
			srcNode(solast.KindFunctionDefinition, fnSpan, solast.Attributes{Name: "set"},
				srcNode(solast.KindExpressionStatement, exprSpan, solast.Attributes{},
					srcNode(solast.KindAssignment, assignSpan, solast.Attributes{Type: "uint256"},
						srcNode(solast.KindIdentifier, span(t, "owner"), solast.Attributes{Type: "uint256", Value: "owner"}),
						srcNode(solast.KindIdentifier, solast.Src{Start: assignSpan.Start + 8, Length: 1}, solast.Attributes{Type: "uint256", Value: "v"}),
					),
				),
				srcNode(solast.KindFunctionCall, reqSpan, solast.Attributes{Type: "tuple()"},
					srcNode(solast.KindIdentifier, solast.Src{Start: reqSpan.Start, Length: 7}, solast.Attributes{Value: "require"}),
				),
			),
		),
	)
	registry := solast.NewRegistry(root)

	l := linker.New()
	object := linker.Object{Path: path, Item: "Test"}
	address := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	// One instruction per tracked span; the bytecode is three stops.
	sourceMap := fmt.Sprintf("%d:%d:0;%d:%d:0;%d:%d:0",
		assignSpan.Start, assignSpan.Length,
		exprSpan.Start, exprSpan.Length,
		reqSpan.Start, reqSpan.Length)
	source, err := l.Source(object, "000000", sourceMap)
	require.NoError(t, err)

	l.RegisterObject(object, address)
	l.RegisterRuntimeSource(object, source)
	l.RegisterAST(path, registry)
	l.RegisterSourceList([]string{path})

	return &testHarness{linker: l, address: address, exprSpan: exprSpan, reqSpan: reqSpan}
}

func TestTracerRevertDiagnostic(t *testing.T) {
	h := newTestHarness(t)
	tracer := New(h.linker, nil)
	hooks := tracer.Hooks()

	hooks.OnEnter(0, byte(vm.CALL), common.Address{}, h.address, []byte{0xaa}, 100000, big.NewInt(0))

	// Assignment: the value of owner is on the stack when the next
	// statement begins.
	hooks.OnOpcode(0, byte(vm.STOP), 0, 0, &fakeScope{}, nil, 0, nil)
	hooks.OnOpcode(1, byte(vm.STOP), 0, 0, &fakeScope{stack: stack(42)}, nil, 0, nil)
	hooks.OnOpcode(2, byte(vm.STOP), 0, 0, &fakeScope{}, nil, 0, nil)

	hooks.OnExit(0, nil, 21000, vm.ErrExecutionReverted, true)

	errs := tracer.Errors()
	require.Len(t, errs, 1)
	info := errs[0]

	assert.True(t, info.IsReverted())
	assert.Equal(t, KindError, info.Kind)

	require.NotNil(t, info.LineInfo)
	assert.Equal(t, 4, info.LineInfo.Line)
	assert.Equal(t, []string{"    require(v == 0);"}, info.LineInfo.Lines)
	assert.Equal(t, "set", info.LineInfo.Function)
	require.NotNil(t, info.LineInfo.Object)
	assert.Equal(t, "Test", info.LineInfo.Object.Item)

	require.Len(t, info.Variables, 1)
	assert.Equal(t, "owner", info.Variables[0].Expr.String())
	assert.Equal(t, "42", info.Variables[0].Value.String())

	assert.True(t, info.IsFailedWith(Location("Test:set"), Statement("require(v == 0);")))
	assert.True(t, info.IsFailedWith(Match().Item("Test").Function("set"), Statement("require(v == 0);")))
	assert.False(t, info.IsFailedWith(Location("Test:other"), Statement("require(v == 0);")))
	assert.False(t, info.IsFailedWith(Location("Test:set"), Statement("owner = v;")))

	rendered := info.String()
	assert.Contains(t, rendered, "require(v == 0);")
	assert.Contains(t, rendered, "owner")
}

func TestTracerSuccessLeavesNoErrors(t *testing.T) {
	h := newTestHarness(t)
	tracer := New(h.linker, nil)
	hooks := tracer.Hooks()

	hooks.OnEnter(0, byte(vm.CALL), common.Address{}, h.address, nil, 100000, big.NewInt(0))
	hooks.OnOpcode(0, byte(vm.STOP), 0, 0, &fakeScope{}, nil, 0, nil)
	hooks.OnOpcode(2, byte(vm.STOP), 0, 0, &fakeScope{}, nil, 0, nil)
	hooks.OnExit(0, nil, 21000, nil, false)

	assert.Empty(t, tracer.Errors())
}

func TestTracerCoverage(t *testing.T) {
	h := newTestHarness(t)
	tracer := New(h.linker, nil)
	hooks := tracer.Hooks()

	hooks.OnEnter(0, byte(vm.CALL), common.Address{}, h.address, nil, 100000, big.NewInt(0))
	hooks.OnOpcode(1, byte(vm.STOP), 0, 0, &fakeScope{}, nil, 0, nil)
	hooks.OnOpcode(2, byte(vm.STOP), 0, 0, &fakeScope{}, nil, 0, nil)
	hooks.OnExit(0, nil, 21000, nil, false)

	visited := tracer.VisitedStatements()
	assert.True(t, visited.Contains(h.exprSpan))
	assert.False(t, visited.Contains(h.reqSpan))
}

func TestTracerNestedErrorPropagation(t *testing.T) {
	h := newTestHarness(t)
	tracer := New(h.linker, nil)
	hooks := tracer.Hooks()

	unknown := common.HexToAddress("0xbb")
	hooks.OnEnter(0, byte(vm.CALL), common.Address{}, h.address, nil, 100000, big.NewInt(0))
	hooks.OnEnter(1, byte(vm.CALL), h.address, unknown, nil, 50000, big.NewInt(0))
	hooks.OnExit(1, nil, 1000, vm.ErrExecutionReverted, true)
	hooks.OnExit(0, nil, 21000, vm.ErrExecutionReverted, true)

	errs := tracer.Errors()
	require.Len(t, errs, 1)
	require.Len(t, errs[0].Subs, 1)
	// The inner frame targeted an unregistered address, so it has no
	// location but still counts as a revert.
	assert.Nil(t, errs[0].Subs[0].LineInfo)
	assert.True(t, NewRoot(errs).IsReverted())
}

func TestTracerUnknownAddress(t *testing.T) {
	h := newTestHarness(t)
	tracer := New(h.linker, nil)
	hooks := tracer.Hooks()

	hooks.OnEnter(0, byte(vm.CALL), common.Address{}, common.HexToAddress("0xcc"), nil, 100000, big.NewInt(0))
	hooks.OnOpcode(0, byte(vm.STOP), 0, 0, &fakeScope{}, nil, 0, nil)
	// The vm reports rollback for every error, only an explicit revert
	// counts as reverted.
	hooks.OnExit(0, nil, 21000, vm.ErrOutOfGas, true)

	errs := tracer.Errors()
	require.Len(t, errs, 1)
	assert.False(t, errs[0].IsReverted())
	assert.Nil(t, errs[0].LineInfo)
	assert.Contains(t, errs[0].String(), "?:?:")
}

func stack(words ...uint64) []uint256.Int {
	out := make([]uint256.Int, len(words))
	for i, w := range words {
		out[i].SetUint64(w)
	}
	return out
}
