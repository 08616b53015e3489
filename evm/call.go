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
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Call carries the parameters of one transaction. It is an immutable
// builder; every setter returns a modified copy, so a base call can be
// shared between tests and refined per transaction.
type Call struct {
	sender   common.Address
	gas      uint64
	gasPrice *uint256.Int
	value    *uint256.Int
}

// NewCall builds a call from the given sender with no gas, gas price or
// value attached.
func NewCall(sender common.Address) Call {
	return Call{
		sender:   sender,
		gasPrice: new(uint256.Int),
		value:    new(uint256.Int),
	}
}

// WithSender returns a copy sent by the given address.
func (c Call) WithSender(sender common.Address) Call {
	c.sender = sender
	return c
}

// WithGas returns a copy carrying the given gas limit.
func (c Call) WithGas(gas uint64) Call {
	c.gas = gas
	return c
}

// WithGasPrice returns a copy paying the given price per gas, in wei.
func (c Call) WithGasPrice(gasPrice *uint256.Int) Call {
	c.gasPrice = gasPrice.Clone()
	return c
}

// WithValue returns a copy attaching the given value, in wei.
func (c Call) WithValue(value *uint256.Int) Call {
	c.value = value.Clone()
	return c
}

// Sender returns the sending address.
func (c Call) Sender() common.Address { return c.sender }

// Gas returns the gas limit.
func (c Call) Gas() uint64 { return c.gas }

// GasPrice returns the price per gas, in wei.
func (c Call) GasPrice() *uint256.Int { return c.gasPrice.Clone() }

// Value returns the attached value, in wei.
func (c Call) Value() *uint256.Int { return c.value.Clone() }
