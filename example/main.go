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

// An example test suite against a simple value-holding contract.
//
// Build the contract artifacts first:
//
//	solc --combined-json abi,bin,srcmap,srcmap-runtime,bin-runtime,ast \
//	    contracts/SimpleContract.sol > contracts/combined.json
package main

import (
	"fmt"
	"math/big"

	"github.com/PrimaBlock/parables/contract"
	"github.com/PrimaBlock/parables/evm"
	"github.com/PrimaBlock/parables/ledger"
	"github.com/PrimaBlock/parables/runner"
	"github.com/PrimaBlock/parables/wei"
)

type valueUpdated struct {
	Value *big.Int
}

func main() {
	runner.Main(func(r *runner.Runner) error {
		combined, err := contract.OpenCombined("contracts/combined.json")
		if err != nil {
			return err
		}
		simple, err := combined.Contract("contracts/SimpleContract.sol", "SimpleContract")
		if err != nil {
			return err
		}

		base, err := evm.New(combined.SourceList())
		if err != nil {
			return err
		}
		if err := combined.Register(base.Linker()); err != nil {
			return err
		}

		owner, err := base.Account()
		if err != nil {
			return err
		}
		base.AddBalance(owner.Address, wei.Ether(1000))
		call := evm.NewCall(owner.Address).
			WithGas(1_000_000).
			WithGasPrice(wei.Gwei(1))

		snapshot := evm.NewSnapshot(base)

		simpleTests := r.Module("simple")

		simpleTests.Test("get and set value", func() error {
			e := snapshot.Get()

			address, err := evm.Deploy(e, simple.NewConstructor(big.NewInt(42)), call).Ok()
			if err != nil {
				return err
			}

			getValue := contract.NewMethod[*big.Int](simple, "getValue")
			current, err := evm.Transact(e, address, getValue, call).Ok()
			if err != nil {
				return err
			}
			if current.Cmp(big.NewInt(42)) != 0 {
				return fmt.Errorf("expected initial value 42, got %s", current)
			}

			setValue := contract.NewMethod[struct{}](simple, "setValue", big.NewInt(100))
			if _, err := evm.Transact(e, address, setValue, call).Ok(); err != nil {
				return err
			}

			// The update is observable and announced.
			updates, err := evm.Logs(e, contract.NewEvent[valueUpdated](simple, "ValueUpdated")).Drain()
			if err != nil {
				return err
			}
			if len(updates) != 1 || updates[0].Value.Cmp(big.NewInt(100)) != 0 {
				return fmt.Errorf("expected a single ValueUpdated(100), got %v", updates)
			}
			return nil
		})

		simpleTests.Test("non-owner cannot set value", func() error {
			e := snapshot.Get()

			address, err := evm.Deploy(e, simple.NewConstructor(big.NewInt(42)), call).Ok()
			if err != nil {
				return err
			}

			intruder, err := e.Account()
			if err != nil {
				return err
			}
			e.AddBalance(intruder.Address, wei.Ether(1))

			setValue := contract.NewMethod[struct{}](simple, "setValue", big.NewInt(0))
			receipt := evm.Transact(e, address, setValue, call.WithSender(intruder.Address))
			if !receipt.IsRevertedWith("SimpleContract:setValue", "require(msg.sender == owner);") {
				return fmt.Errorf("expected an ownership revert, got %s", receipt.Outcome())
			}
			return nil
		})

		r.Test("books stay balanced", func() error {
			e := snapshot.Get()

			address, err := evm.Deploy(e, simple.NewConstructor(big.NewInt(0)), call).Ok()
			if err != nil {
				return err
			}

			balances := ledger.AccountBalance(e)
			balances.Name(owner.Address, "owner")
			if err := balances.SyncAll(owner.Address, address); err != nil {
				return err
			}

			receipt := evm.TransferTo(e, address, call.WithValue(wei.Ether(40)))
			if _, err := receipt.Ok(); err != nil {
				return err
			}

			ledger.Sub(balances, owner.Address, receipt.Total())
			ledger.Add(balances, address, wei.Ether(40))

			return balances.Verify()
		})

		return nil
	})
}
