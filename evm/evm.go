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

// Package evm drives transactions against an in-memory chain state with
// tracing wired in, classifies their outcomes, and collects emitted logs
// by topic.
package evm

import (
	"fmt"
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"

	"github.com/PrimaBlock/parables/linker"
	"github.com/PrimaBlock/parables/solast"
	"github.com/PrimaBlock/parables/trace"
)

const blockGasLimit = 50_000_000

// EVM is a self-contained chain state with tracing attached. It is not
// safe for concurrent use; concurrent tests each take their own copy
// through a Snapshot.
type EVM struct {
	statedb     *state.StateDB
	chainConfig *params.ChainConfig
	blockNumber uint64
	time        uint64
	// logs collected from applied transactions, bucketed by first topic.
	logs   map[common.Hash][]*types.Log
	linker *linker.Linker
	// coverage is the union of statements visited by every transaction.
	coverage mapset.Set[solast.Src]
	txCount  uint64
}

// New creates an empty chain state. The source list, when given, lets
// diagnostics resolve source map file indices back to paths.
func New(sourceList []string) (*EVM, error) {
	statedb, err := state.New(types.EmptyRootHash, state.NewDatabase(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil), nil))
	if err != nil {
		return nil, fmt.Errorf("failed to set up state: %w", err)
	}

	l := linker.New()
	if len(sourceList) > 0 {
		l.RegisterSourceList(sourceList)
	}

	return &EVM{
		statedb:     statedb,
		chainConfig: params.MergedTestChainConfig,
		blockNumber: 10_000_000,
		time:        1,
		logs:        make(map[common.Hash][]*types.Log),
		linker:      l,
		coverage:    mapset.NewThreadUnsafeSet[solast.Src](),
	}, nil
}

// Copy returns an independent clone. State, logs, linker registrations and
// coverage all fork; neither instance observes the other's mutations.
func (e *EVM) Copy() *EVM {
	logs := make(map[common.Hash][]*types.Log, len(e.logs))
	for topic, entries := range e.logs {
		logs[topic] = append([]*types.Log(nil), entries...)
	}
	return &EVM{
		statedb:     e.statedb.Copy(),
		chainConfig: e.chainConfig,
		blockNumber: e.blockNumber,
		time:        e.time,
		logs:        logs,
		linker:      e.linker.Copy(),
		coverage:    e.coverage.Clone(),
		txCount:     e.txCount,
	}
}

// Linker exposes the registry binding deployed addresses to sources.
func (e *EVM) Linker() *linker.Linker { return e.linker }

// BlockNumber returns the current block number.
func (e *EVM) BlockNumber() uint64 { return e.blockNumber }

// SetBlockNumber sets the block number subsequent transactions run at.
func (e *EVM) SetBlockNumber(number uint64) { e.blockNumber = number }

// Balance returns the balance of an account, in wei.
func (e *EVM) Balance(address common.Address) *uint256.Int {
	return e.statedb.GetBalance(address).Clone()
}

// AddBalance mints the given number of wei into an account.
func (e *EVM) AddBalance(address common.Address, wei *uint256.Int) {
	e.statedb.AddBalance(address, wei, tracing.BalanceChangeUnspecified)
}

// Coverage returns the union of source statements visited by every
// transaction applied so far.
func (e *EVM) Coverage() mapset.Set[solast.Src] {
	return e.coverage.Clone()
}

// Constructor describes a deployable compilation unit: its unlinked
// bytecode with source maps, and the encoding of its constructor
// arguments.
type Constructor interface {
	Object() linker.Object
	Bin() string
	SourceMap() string
	RuntimeBin() string
	RuntimeSourceMap() string
	EncodeArgs(l *linker.Linker) ([]byte, error)
}

// Function describes a callable contract function: input encoding and
// output decoding.
type Function[T any] interface {
	EncodeInput(l *linker.Linker) ([]byte, error)
	DecodeOutput(output []byte) (T, error)
}

// Deploy links and deploys a contract. On success the deployed address is
// registered with the linker so later traces resolve into its source.
func Deploy(e *EVM, constructor Constructor, call Call) *Receipt[common.Address] {
	object := constructor.Object()

	code, err := e.linker.Link(constructor.Bin())
	if err != nil {
		return failed[common.Address](call, fmt.Errorf("%v: failed to link: %w", object, err))
	}
	args, err := constructor.EncodeArgs(e.linker)
	if err != nil {
		return failed[common.Address](call, fmt.Errorf("%v: failed to encode deployment: %w", object, err))
	}
	code = append(code, args...)

	var entrySource *linker.Source
	if constructor.SourceMap() != "" {
		entrySource, err = e.linker.Source(object, constructor.Bin(), constructor.SourceMap())
		if err != nil {
			return failed[common.Address](call, err)
		}
	}

	a := e.apply(nil, code, call, entrySource)
	address := crypto.CreateAddress(call.sender, a.nonce)
	receipt := classify(e, a, call, func([]byte) (common.Address, error) {
		return address, nil
	})

	if receipt.IsOk() {
		e.linker.RegisterObject(object, address)
		if constructor.RuntimeBin() != "" && constructor.RuntimeSourceMap() != "" {
			source, err := e.linker.Source(object, constructor.RuntimeBin(), constructor.RuntimeSourceMap())
			if err != nil {
				return failed[common.Address](call, err)
			}
			e.linker.RegisterRuntimeSource(object, source)
		}
	}
	return receipt
}

// Transact calls a contract function and decodes its output.
func Transact[T any](e *EVM, address common.Address, function Function[T], call Call) *Receipt[T] {
	input, err := function.EncodeInput(e.linker)
	if err != nil {
		return failed[T](call, fmt.Errorf("failed to encode input: %w", err))
	}
	a := e.apply(&address, input, call, nil)
	return classify(e, a, call, function.DecodeOutput)
}

// TransferTo sends a plain value transfer to an address, invoking its
// fallback function if it is a contract.
func TransferTo(e *EVM, address common.Address, call Call) *Receipt[struct{}] {
	a := e.apply(&address, nil, call, nil)
	return classify(e, a, call, func([]byte) (struct{}, error) {
		return struct{}{}, nil
	})
}

// applied is the raw product of one transaction.
type applied struct {
	output  []byte
	gasUsed uint64
	nonce   uint64
	errs    []*trace.ErrorInfo
	// applyErr is set when the transaction was refused before execution.
	applyErr error
}

func (e *EVM) apply(to *common.Address, data []byte, call Call, entrySource *linker.Source) *applied {
	nonce := e.statedb.GetNonce(call.sender)
	tracer := trace.New(e.linker, entrySource)
	hooks := tracer.Hooks()

	gasPrice := call.gasPrice.ToBig()
	msg := &core.Message{
		To:               to,
		From:             call.sender,
		Nonce:            nonce,
		Value:            call.value.ToBig(),
		GasLimit:         call.gas,
		GasPrice:         gasPrice,
		GasFeeCap:        gasPrice,
		GasTipCap:        gasPrice,
		Data:             data,
		SkipNonceChecks:  true,
		SkipFromEOACheck: true,
	}

	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    common.Address{},
		BlockNumber: new(big.Int).SetUint64(e.blockNumber),
		Time:        e.time,
		Difficulty:  new(big.Int),
		GasLimit:    blockGasLimit,
		BaseFee:     new(big.Int),
		BlobBaseFee: new(big.Int),
		Random:      &common.Hash{},
	}
	env := vm.NewEVM(blockCtx, core.NewEVMTxContext(msg), e.statedb, e.chainConfig, vm.Config{Tracer: hooks})

	e.txCount++
	txHash := common.BigToHash(new(big.Int).SetUint64(e.txCount))
	e.statedb.SetTxContext(txHash, 0)
	e.statedb.SetLogger(hooks)

	result, err := core.ApplyMessage(env, msg, new(core.GasPool).AddGas(blockGasLimit))
	if err != nil {
		return &applied{nonce: nonce, applyErr: err}
	}
	e.statedb.Finalise(true)

	e.addLogs(e.statedb.GetLogs(txHash, e.blockNumber, common.Hash{}))
	e.coverage = e.coverage.Union(tracer.VisitedStatements())

	return &applied{
		output:  result.ReturnData,
		gasUsed: result.UsedGas,
		nonce:   nonce,
		errs:    tracer.Errors(),
	}
}

// addLogs buckets freshly emitted logs by their first topic.
func (e *EVM) addLogs(logs []*types.Log) {
	for _, entry := range logs {
		if len(entry.Topics) == 0 {
			log.Warn("dropping log without topics", "address", entry.Address)
			continue
		}
		topic := entry.Topics[0]
		e.logs[topic] = append(e.logs[topic], entry)
	}
}

// classify turns a raw application into a receipt with exactly one
// outcome.
func classify[T any](e *EVM, a *applied, call Call, decode func([]byte) (T, error)) *Receipt[T] {
	receipt := &Receipt[T]{
		gasUsed:  a.gasUsed,
		gasPrice: call.gasPrice.Clone(),
		txValue:  call.value.Clone(),
		sender:   call.sender,
	}
	switch {
	case a.applyErr != nil:
		receipt.outcome = Status
		receipt.err = a.applyErr
	case len(a.errs) > 0:
		root := trace.NewRoot(a.errs)
		receipt.errorInfo = root
		if root.IsReverted() {
			receipt.outcome = Reverted
		} else {
			receipt.outcome = Errored
		}
	default:
		value, err := decode(a.output)
		if err != nil {
			receipt.outcome = Status
			receipt.err = fmt.Errorf("output conversion failed: %w", err)
		} else {
			receipt.outcome = Ok
			receipt.value = value
		}
	}
	return receipt
}

// failed builds a receipt for a transaction refused before application.
func failed[T any](call Call, err error) *Receipt[T] {
	return &Receipt[T]{
		outcome:  Status,
		err:      err,
		gasPrice: call.gasPrice.Clone(),
		txValue:  call.value.Clone(),
		sender:   call.sender,
	}
}
