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

// Package ledger keeps the books for a set of accounts during a test.
//
// A ledger mirrors the state a test expects the virtual machine to be in,
// permitting a kind of double booking. Expected wei balances, or any
// user-defined state, are updated next to the real transactions and checked
// against the machine as the test goes.
package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/PrimaBlock/parables/evm"
)

// State plugs a verifiable quantity into a ledger. Sync reads the current
// value for an address out of the machine, Verify checks a recorded entry
// against it.
type State[E any] interface {
	NewInstance() E
	Sync(address common.Address, entry E) (E, error)
	Verify(address common.Address, entry E) error
}

// Ledger tracks one expected entry per address.
type Ledger[E any] struct {
	state   State[E]
	entries map[common.Address]E
	names   map[common.Address]string
	// order preserves first registration so verification errors come out
	// in a stable order.
	order []common.Address
}

// New constructs an empty ledger over the given state.
func New[E any](state State[E]) *Ledger[E] {
	return &Ledger[E]{
		state:   state,
		entries: make(map[common.Address]E),
		names:   make(map[common.Address]string),
	}
}

// AccountBalance constructs a ledger tracking expected wei balances
// against the given machine.
func AccountBalance(e *evm.EVM) *Ledger[*uint256.Int] {
	return New[*uint256.Int](accountBalance{evm: e})
}

// Name associates a human-friendly name with an address, used instead of
// the hex form in verification errors.
func (l *Ledger[E]) Name(address common.Address, name string) {
	l.names[address] = name
}

// Sync initializes or refreshes the expected entry for an address from the
// current state of the machine.
func (l *Ledger[E]) Sync(address common.Address) error {
	entry, ok := l.entries[address]
	if !ok {
		entry = l.state.NewInstance()
		l.order = append(l.order, address)
	}
	entry, err := l.state.Sync(address, entry)
	if err != nil {
		return err
	}
	l.entries[address] = entry
	return nil
}

// SyncAll syncs every given address.
func (l *Ledger[E]) SyncAll(addresses ...common.Address) error {
	for _, address := range addresses {
		if err := l.Sync(address); err != nil {
			return err
		}
	}
	return nil
}

// Entry returns the expected entry for an address, registering a fresh
// instance if the address is not yet tracked.
func (l *Ledger[E]) Entry(address common.Address) E {
	entry, ok := l.entries[address]
	if !ok {
		entry = l.state.NewInstance()
		l.entries[address] = entry
		l.order = append(l.order, address)
	}
	return entry
}

// Verify walks every registered entry and checks it against the machine.
// All mismatches are collected into a single error.
func (l *Ledger[E]) Verify() error {
	var failures []string

	for _, address := range l.order {
		if err := l.state.Verify(address, l.entries[address]); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", l.describe(address), err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("errors in ledger:\n%s", strings.Join(failures, "\n"))
	}
	return nil
}

func (l *Ledger[E]) describe(address common.Address) string {
	if name, ok := l.names[address]; ok {
		return name
	}
	return address.Hex()
}

// checkpoint verifies a single entry right after it was mutated so a
// mis-accounting points at the offending call site.
func (l *Ledger[E]) checkpoint(address common.Address) {
	if err := l.state.Verify(address, l.entries[address]); err != nil {
		panic(fmt.Sprintf("%s: %s", l.describe(address), err))
	}
}

// Add adds to the expected balance for an address and immediately checks
// the entry against the machine. Overflow panics, since it always means
// the test itself is mis-accounting.
func Add(l *Ledger[*uint256.Int], address common.Address, value *uint256.Int) {
	entry := l.Entry(address)
	if _, overflow := entry.AddOverflow(entry, value); overflow {
		panic(fmt.Sprintf("%s: adding %s to the account would overflow the balance", l.describe(address), value))
	}
	l.checkpoint(address)
}

// Sub subtracts from the expected balance for an address and immediately
// checks the entry against the machine. Underflow panics.
func Sub(l *Ledger[*uint256.Int], address common.Address, value *uint256.Int) {
	entry := l.Entry(address)
	if entry.Lt(value) {
		panic(fmt.Sprintf("%s: subtracting %s would set account to negative balance", l.describe(address), value))
	}
	entry.Sub(entry, value)
	l.checkpoint(address)
}

// accountBalance checks expected wei balances against the machine.
type accountBalance struct {
	evm *evm.EVM
}

func (s accountBalance) NewInstance() *uint256.Int {
	return new(uint256.Int)
}

func (s accountBalance) Sync(address common.Address, entry *uint256.Int) (*uint256.Int, error) {
	return entry.Set(s.evm.Balance(address)), nil
}

func (s accountBalance) Verify(address common.Address, entry *uint256.Int) error {
	actual := s.evm.Balance(address)
	if !entry.Eq(actual) {
		return fmt.Errorf("expected account wei balance %s, but was %s", entry, actual)
	}
	return nil
}
