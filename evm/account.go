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
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is a fresh keypair for use as a transaction sender or a
// signature check subject inside contracts.
type Account struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// Account generates a fresh account. The account owns no wei until funded
// with AddBalance.
func (e *EVM) Account() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to set up account: %w", err)
	}
	return &Account{
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// Sign hashes the concatenated chunks and signs them under the personal
// message envelope, producing the 65 byte r || s || v form contracts
// recover with ecrecover.
func (a *Account) Sign(chunks ...[]byte) ([]byte, error) {
	message := crypto.Keccak256(chunks...)
	hash := accounts.TextHash(message)

	signature, err := crypto.Sign(hash, a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	// Contracts expect the recovery id offset by 27.
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}
