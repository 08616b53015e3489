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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/PrimaBlock/parables/trace"
)

// Outcome classifies how a transaction ended. Exactly one outcome is
// produced per transaction.
type Outcome byte

const (
	// Ok means the transaction applied and its output decoded.
	Ok Outcome = iota
	// Reverted means some frame reverted explicitly.
	Reverted
	// Errored means some frame failed with a vm error other than revert.
	Errored
	// Status means the transaction was refused before execution.
	Status
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case Reverted:
		return "reverted"
	case Errored:
		return "errored"
	default:
		return "status"
	}
}

// Receipt is the result of one deploy, call or transfer. Regardless of
// outcome it carries enough to account for the wei the transaction cost.
type Receipt[T any] struct {
	outcome   Outcome
	value     T
	errorInfo *trace.ErrorInfo
	status    uint64
	err       error

	gasUsed  uint64
	gasPrice *uint256.Int
	txValue  *uint256.Int
	sender   common.Address
}

// Outcome returns the outcome classification.
func (r *Receipt[T]) Outcome() Outcome { return r.outcome }

// IsOk reports a successful transaction.
func (r *Receipt[T]) IsOk() bool { return r.outcome == Ok }

// IsErr reports any non-ok outcome.
func (r *Receipt[T]) IsErr() bool { return r.outcome != Ok }

// IsReverted reports an explicit revert in any frame.
func (r *Receipt[T]) IsReverted() bool {
	return r.outcome == Reverted
}

// IsRevertedWith reports a revert whose diagnostic matches the given
// location and statement. The location is "path:item:function" with
// leading components optional, the statement is compared whitespace
// trimmed.
func (r *Receipt[T]) IsRevertedWith(location, stmt string) bool {
	if r.outcome != Reverted || r.errorInfo == nil {
		return false
	}
	return r.errorInfo.IsFailedWith(trace.Location(location), trace.Statement(stmt))
}

// Ok returns the decoded output, or an error describing the failure.
func (r *Receipt[T]) Ok() (T, error) {
	var zero T
	switch r.outcome {
	case Ok:
		return r.value, nil
	case Reverted:
		return zero, fmt.Errorf("call was reverted:\n%s", r.errorInfo)
	case Errored:
		return zero, fmt.Errorf("call errored:\n%s", r.errorInfo)
	default:
		if r.err != nil {
			return zero, fmt.Errorf("bad status %d: %w", r.status, r.err)
		}
		return zero, fmt.Errorf("bad status %d", r.status)
	}
}

// ErrorInfo returns the structured diagnostic for reverted and errored
// outcomes, nil otherwise.
func (r *Receipt[T]) ErrorInfo() *trace.ErrorInfo { return r.errorInfo }

// GasUsed returns the gas consumed.
func (r *Receipt[T]) GasUsed() uint64 { return r.gasUsed }

// Sender returns the transaction sender.
func (r *Receipt[T]) Sender() common.Address { return r.sender }

// Gas returns the wei paid for gas.
func (r *Receipt[T]) Gas() *uint256.Int {
	out := new(uint256.Int).SetUint64(r.gasUsed)
	return out.Mul(out, r.gasPrice)
}

// Total returns the wei the sender parted with, gas plus attached value.
func (r *Receipt[T]) Total() *uint256.Int {
	out := r.Gas()
	return out.Add(out, r.txValue)
}
