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

// Package trace observes a transaction opcode by opcode, maintaining a call
// frame stack with source resolution and expression bindings, and produces
// structured diagnostics when a frame reverts or faults.
package trace

import (
	"errors"
	"math/big"
	"os"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/PrimaBlock/parables/linker"
	"github.com/PrimaBlock/parables/solast"
	"github.com/PrimaBlock/parables/srcmap"
)

// frame is the interpretive context of one level of the call stack, alive
// for the duration of its call.
type frame struct {
	source   *linker.Source
	registry *solast.Registry
	callData []byte
	// variables are the bindings committed on the last completed
	// expression statement.
	variables map[string]Binding
	// seen buffers bindings decoded since then.
	seen     map[string]Binding
	function *solast.Function
	// lastPC is the most recent program counter observed in this frame,
	// used to locate the failing statement on exit.
	lastPC uint64
	hasPC  bool
	// errors collected from completed child frames.
	errors []*ErrorInfo
}

// Tracer implements the vm tracing hooks for one transaction. A tracer must
// not be reused across transactions; the wrapper creates a fresh one per
// apply. All hook callbacks for one transaction are totally ordered, the
// mutex only guards against inspection from other goroutines.
type Tracer struct {
	mu     sync.Mutex
	linker *linker.Linker
	// entrySource is the deploy time source when the transaction creates a
	// contract, nil otherwise.
	entrySource  *linker.Source
	frames       []*frame
	errors       []*ErrorInfo
	lastMapping  *srcmap.Mapping
	lastFunction *solast.Function
	visited      mapset.Set[solast.Src]
}

// New creates a tracer resolving addresses through the given linker.
// entrySource is consulted for the root create frame of a deploy.
func New(l *linker.Linker, entrySource *linker.Source) *Tracer {
	return &Tracer{
		linker:      l,
		entrySource: entrySource,
		visited:     mapset.NewThreadUnsafeSet[solast.Src](),
	}
}

// Hooks returns the tracing hooks to install on the vm.
func (t *Tracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter:  t.onEnter,
		OnExit:   t.onExit,
		OnOpcode: t.onOpcode,
		OnFault:  t.onFault,
	}
}

// Errors returns the diagnostics of every failed frame, outermost last.
func (t *Tracer) Errors() []*ErrorInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*ErrorInfo(nil), t.errors...)
}

// VisitedStatements returns the source spans executed during the
// transaction. Callers may union sets across transactions to compute
// coverage.
func (t *Tracer) VisitedStatements() mapset.Set[solast.Src] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visited.Clone()
}

func (t *Tracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := &frame{
		callData:  append([]byte(nil), input...),
		variables: make(map[string]Binding),
		seen:      make(map[string]Binding),
	}

	op := vm.OpCode(typ)
	if op == vm.CREATE || op == vm.CREATE2 {
		// Only the root create has a known source; nested creates run
		// bytecode produced at run time.
		if depth == 0 && t.entrySource != nil {
			f.source = t.entrySource
			f.registry = t.linker.FindASTByObject(t.entrySource.Object)
		}
	} else {
		info := t.linker.RuntimeInfo(to)
		f.source = info.Source
		f.registry = info.AST
	}

	t.frames = append(t.frames, f)
}

func (t *Tracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.popFrame()
	if f == nil {
		return
	}

	var errs []*ErrorInfo
	if err == nil {
		errs = f.errors
	} else {
		// The hook flag signals state rollback, which covers every vm
		// error. An explicit REVERT is the only error callers are meant to
		// assert against, so distinguish it here.
		info := &ErrorInfo{
			Kind:      KindError,
			Err:       err,
			Reverted:  errors.Is(err, vm.ErrExecutionReverted),
			Subs:      f.errors,
			Variables: sortBindings(f.variables),
		}
		if f.hasPC {
			info.LineInfo = t.lineInfo(f)
		}
		errs = []*ErrorInfo{info}
	}
	if len(errs) == 0 {
		return
	}
	if parent := t.currentFrame(); parent != nil {
		parent.errors = append(parent.errors, errs...)
	} else {
		t.errors = append(t.errors, errs...)
	}
}

func (t *Tracer) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.currentFrame()
	if f == nil {
		return
	}
	f.lastPC = pc
	f.hasPC = true

	if decodeErr := t.decode(f, pc, scope, false); decodeErr != nil {
		log.Warn("failed to decode instruction", "pc", pc, "err", decodeErr)
	}
}

// onFault forces a final decode so bindings on the faulting statement are
// committed before the frame exits.
func (t *Tracer) onFault(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.currentFrame()
	if f == nil {
		return
	}
	f.lastPC = pc
	f.hasPC = true

	if decodeErr := t.decode(f, pc, scope, true); decodeErr != nil {
		log.Warn("failed to decode faulting instruction", "pc", pc, "err", decodeErr)
	}
}

func (t *Tracer) currentFrame() *frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *Tracer) popFrame() *frame {
	f := t.currentFrame()
	if f != nil {
		t.frames = t.frames[:len(t.frames)-1]
	}
	return f
}

// decode advances the interpretive state by one instruction. When the
// source mapping changes (or force is set), the node left behind is either
// committed as the frame's official bindings (expression statements) or
// decoded into a fresh binding against the captured stack and memory.
func (t *Tracer) decode(f *frame, pc uint64, scope tracing.OpContext, force bool) error {
	if f.source == nil {
		return nil
	}
	current, ok := f.source.FindMapping(pc)
	if !ok {
		// Constructor epilogues are not always covered by the map.
		return nil
	}

	replace := force || t.lastMapping == nil || *t.lastMapping != current

	if f.registry != nil && current.HasFile() {
		if fn := f.registry.FindFunction(current.FileIndex, current.Start, current.Length); fn != nil {
			if t.lastFunction == nil || fn.Src != t.lastFunction.Src {
				t.lastFunction = fn
				f.function = fn
			}
		}
	}

	if !replace {
		return nil
	}
	prev := t.lastMapping
	t.lastMapping = &current
	if prev == nil || f.registry == nil {
		return nil
	}

	from := f.registry.Find(prev.Start, prev.Length)
	if from == nil {
		return nil
	}
	if f.registry.Find(current.Start, current.Length) == nil {
		return nil
	}

	t.visited.Add(from.Src)

	if from.Name == solast.KindExpressionStatement {
		f.variables = f.seen
		f.seen = make(map[string]Binding)
		return nil
	}

	expr, rawType, ok := solast.DecodeExpr(from)
	if !ok {
		return nil
	}
	ctx := &solast.Context{
		Stack:    append([]uint256.Int(nil), scope.StackData()...),
		Memory:   scope.MemoryData(),
		CallData: f.callData,
		Registry: f.registry,
	}
	value, err := solast.ParseType(rawType).Value(ctx)
	if err != nil {
		return err
	}
	f.seen[expr.String()] = Binding{Expr: expr, Value: value}
	return nil
}

// lineInfo resolves the frame's last program counter to its source lines.
// Resolution failures degrade the diagnostic instead of failing the trace.
func (t *Tracer) lineInfo(f *frame) *LineInfo {
	if f.source == nil {
		return nil
	}
	m, ok := f.source.FindMapping(f.lastPC)
	if !ok || !m.HasFile() {
		return nil
	}
	path, ok := t.linker.FindFile(m.FileIndex)
	if !ok {
		return nil
	}
	source, err := os.ReadFile(path)
	if err != nil {
		log.Warn("failed to read source file", "path", path, "err", err)
		return nil
	}
	lines, line, err := FindLines(source, int(m.Start), int(m.Start+m.Length))
	if err != nil {
		log.Warn("failed to locate source span", "path", path, "err", err)
		return nil
	}

	info := &LineInfo{Path: path, Line: line, Lines: lines}
	object := f.source.Object
	info.Object = &object
	if f.function != nil {
		info.Function = f.function.Name
	}
	return info
}
