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

package evm

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrimaBlock/parables/linker"
	"github.com/PrimaBlock/parables/wei"
)

// Hand assembled runtimes so tests do not depend on a compiler.
const (
	// STOP, accepts any call or transfer.
	runtimeStop = "00"
	// PUSH1 0 PUSH1 0 REVERT, always reverts.
	runtimeRevert = "600080fd"
	// INVALID, faults without reverting.
	runtimeInvalid = "fe"
)

// deployable wraps a runtime in the standard constructor prologue that
// codecopies it into the deployed account.
func deployable(runtime string) string {
	n := len(runtime) / 2
	return fmt.Sprintf("60%02x600c60003960%02x6000f3%s", n, n, runtime)
}

// runtimeLogCalldata emits LOG2 with the given signature topic and the
// first calldata word as the indexed topic, then stops.
func runtimeLogCalldata(topic0 common.Hash) string {
	return fmt.Sprintf("6000357f%x60006000a200", topic0)
}

type testConstructor struct {
	object linker.Object
	bin    string
}

func (c testConstructor) Object() linker.Object                 { return c.object }
func (c testConstructor) Bin() string                           { return c.bin }
func (c testConstructor) SourceMap() string                     { return "" }
func (c testConstructor) RuntimeBin() string                    { return "" }
func (c testConstructor) RuntimeSourceMap() string              { return "" }
func (c testConstructor) EncodeArgs(*linker.Linker) ([]byte, error) { return nil, nil }

// rawCall passes its input through unencoded and returns raw output.
type rawCall struct {
	input []byte
}

func (f rawCall) EncodeInput(*linker.Linker) ([]byte, error) { return f.input, nil }
func (f rawCall) DecodeOutput(output []byte) ([]byte, error) { return output, nil }

var valueUpdatedTopic = crypto.Keccak256Hash([]byte("ValueUpdated(uint256)"))

// valueUpdated decodes the indexed parameter of the test event.
type valueUpdated struct{}

func (valueUpdated) Topic() common.Hash { return valueUpdatedTopic }

func (valueUpdated) ParseLog(entry *types.Log) (uint64, error) {
	if len(entry.Topics) < 2 {
		return 0, fmt.Errorf("expected an indexed parameter")
	}
	return entry.Topics[1].Big().Uint64(), nil
}

var owner = common.HexToAddress("0x0000000000000000000000000000000000000001")

func newFunded(t *testing.T) (*EVM, Call) {
	t.Helper()
	e, err := New(nil)
	require.NoError(t, err)
	e.AddBalance(owner, wei.Ether(1000))
	call := NewCall(owner).WithGas(1_000_000).WithGasPrice(uint256.NewInt(1))
	return e, call
}

func deployRuntime(t *testing.T, e *EVM, call Call, item, runtime string) common.Address {
	t.Helper()
	receipt := Deploy(e, testConstructor{
		object: linker.Object{Path: item + ".sol", Item: item},
		bin:    deployable(runtime),
	}, call)
	address, err := receipt.Ok()
	require.NoError(t, err)
	return address
}

func TestDeployAndTransfer(t *testing.T) {
	e, call := newFunded(t)

	receipt := Deploy(e, testConstructor{
		object: linker.Object{Path: "Simple.sol", Item: "Simple"},
		bin:    deployable(runtimeStop),
	}, call)
	require.True(t, receipt.IsOk())
	address, err := receipt.Ok()
	require.NoError(t, err)

	// Deploying registers the address with the linker.
	resolved, ok := e.Linker().AddressOf("Simple")
	require.True(t, ok)
	assert.Equal(t, address, resolved)

	// The owner paid exactly the gas.
	expected := new(uint256.Int).Sub(wei.Ether(1000), receipt.Gas())
	assert.Equal(t, expected, e.Balance(owner))

	// A plain transfer lands on the contract balance.
	transfer := TransferTo(e, address, call.WithValue(wei.Ether(42)))
	require.True(t, transfer.IsOk())
	assert.Equal(t, wei.Ether(42), e.Balance(address))
	assert.Equal(t, new(uint256.Int).Add(transfer.Gas(), wei.Ether(42)), transfer.Total())
}

func TestDeployLinksLibrary(t *testing.T) {
	e, call := newFunded(t)

	library := deployRuntime(t, e, call, "SafeMath", runtimeStop)

	// The contract bytecode references the library through a placeholder.
	slot := "__SafeMath.sol:SafeMath" + strings.Repeat("_", 17)
	receipt := Deploy(e, testConstructor{
		object: linker.Object{Path: "Token.sol", Item: "Token"},
		bin:    "73" + slot + "5060006000f3",
	}, call)
	require.True(t, receipt.IsOk(), "deploy failed: %v", receipt.Outcome())

	_ = library

	// An unresolvable placeholder refuses the deploy up front.
	missing := Deploy(e, testConstructor{
		object: linker.Object{Path: "Broken.sol", Item: "Broken"},
		bin:    "73__Missing.sol:Missing" + strings.Repeat("_", 19) + "5060006000f3",
	}, call)
	assert.Equal(t, Status, missing.Outcome())
	_, err := missing.Ok()
	assert.ErrorContains(t, err, "Missing")
}

func TestCallReverts(t *testing.T) {
	e, call := newFunded(t)
	address := deployRuntime(t, e, call, "Reverter", runtimeRevert)

	receipt := Transact(e, address, rawCall{}, call)
	assert.Equal(t, Reverted, receipt.Outcome())
	assert.True(t, receipt.IsReverted())
	assert.True(t, receipt.IsErr())
	require.NotNil(t, receipt.ErrorInfo())
	assert.True(t, receipt.ErrorInfo().IsReverted())

	_, err := receipt.Ok()
	assert.ErrorContains(t, err, "reverted")

	// Gas is still accounted on failure.
	assert.NotZero(t, receipt.GasUsed())
}

func TestCallErrors(t *testing.T) {
	e, call := newFunded(t)
	address := deployRuntime(t, e, call, "Broken", runtimeInvalid)

	// A fault that is not an explicit revert classifies as Errored.
	receipt := Transact(e, address, rawCall{}, call)
	assert.Equal(t, Errored, receipt.Outcome())
	assert.True(t, receipt.IsErr())
	assert.False(t, receipt.IsReverted())
	require.NotNil(t, receipt.ErrorInfo())

	_, err := receipt.Ok()
	assert.ErrorContains(t, err, "call errored")
}

func TestCallOk(t *testing.T) {
	e, call := newFunded(t)
	address := deployRuntime(t, e, call, "Simple", runtimeStop)

	receipt := Transact(e, address, rawCall{input: []byte{0x01}}, call)
	require.True(t, receipt.IsOk())
	output, err := receipt.Ok()
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestStatusOnRefusedTransaction(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	// Unfunded sender cannot buy gas.
	broke := common.HexToAddress("0xbad")
	call := NewCall(broke).WithGas(1_000_000).WithGasPrice(uint256.NewInt(1))
	receipt := TransferTo(e, common.HexToAddress("0x2"), call)

	assert.Equal(t, Status, receipt.Outcome())
	_, err = receipt.Ok()
	assert.ErrorContains(t, err, "bad status")
}

func TestLogDrain(t *testing.T) {
	e, call := newFunded(t)
	address := deployRuntime(t, e, call, "Events", runtimeLogCalldata(valueUpdatedTopic))

	emit := func(v int64) {
		word := common.BigToHash(big.NewInt(v))
		receipt := Transact(e, address, rawCall{input: word.Bytes()}, call)
		require.True(t, receipt.IsOk())
	}
	emit(100)
	emit(7)
	emit(100)

	require.True(t, e.HasLogs())

	// Drain only the events whose indexed parameter is 100.
	hundred := This(common.BigToHash(big.NewInt(100)))
	values, err := Logs(e, valueUpdated{}).Filter(hundred, Any(), Any()).Drain()
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 100}, values)

	// The non-matching event is still recorded.
	require.True(t, e.HasLogs())

	rest, err := Logs(e, valueUpdated{}).DrainWithSender()
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, uint64(7), rest[0].Log)
	assert.Equal(t, address, rest[0].Sender)

	assert.False(t, e.HasLogs())
}

func TestLogDrop(t *testing.T) {
	e, call := newFunded(t)
	address := deployRuntime(t, e, call, "Events", runtimeLogCalldata(valueUpdatedTopic))

	receipt := Transact(e, address, rawCall{input: common.BigToHash(big.NewInt(1)).Bytes()}, call)
	require.True(t, receipt.IsOk())
	require.True(t, e.HasLogs())

	require.NoError(t, Logs(e, valueUpdated{}).Drop())
	assert.False(t, e.HasLogs())
}

func TestSnapshotIsolation(t *testing.T) {
	e, call := newFunded(t)
	deployRuntime(t, e, call, "Simple", runtimeStop)

	snapshot := NewSnapshot(e)
	a := snapshot.Get()
	b := snapshot.Get()

	extra := common.HexToAddress("0x99")
	a.AddBalance(extra, wei.Ether(1))

	assert.Equal(t, wei.Ether(1), a.Balance(extra))
	assert.True(t, b.Balance(extra).IsZero())

	// Linker registrations fork as well.
	aAddr := deployRuntime(t, a, call, "OnlyInA", runtimeStop)
	_, ok := b.Linker().AddressOf("OnlyInA")
	assert.False(t, ok)
	_, ok = a.Linker().ObjectAt(aAddr)
	assert.True(t, ok)
}

func TestAccount(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	account, err := e.Account()
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, account.Address)

	signature, err := account.Sign([]byte("payload"))
	require.NoError(t, err)
	require.Len(t, signature, 65)
	assert.GreaterOrEqual(t, signature[64], byte(27))
}
