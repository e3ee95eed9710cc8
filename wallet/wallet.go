// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package wallet defines the signing wallet capability and helpers
// for working with wallet addresses. Key custody and the signing
// algorithm live behind the Wallet interface; this package never
// sees private key material.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/tx"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// ErrInvalidAddress is returned when an address cannot be parsed or
// carries no payment credential.
var ErrInvalidAddress = errors.New("invalid address")

// Wallet is the capability handed to us by the wallet owner. SignTx
// receives a balanced draft, attaches witnesses for the scripts and
// redeemers it carries, and returns the signed transaction in CBOR.
type Wallet interface {
	Address(ctx context.Context) (string, error)
	Utxos(ctx context.Context) ([]chain.Utxo, error)
	SignTx(ctx context.Context, draft *tx.Draft) ([]byte, error)
}

// PaymentKeyHash extracts the payment credential hash from a bech32
// address. This is the identity used to designate escrow parties and
// reputation subjects.
func PaymentKeyHash(address string) ([]byte, error) {
	addr, err := lcommon.NewAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	keyHash := addr.PaymentKeyHash()
	hashBytes := keyHash.Bytes()
	if len(hashBytes) == 0 {
		return nil, fmt.Errorf(
			"%w: no payment credential in %s",
			ErrInvalidAddress,
			address,
		)
	}
	return hashBytes, nil
}

// Balance sums the value of all UTXOs held by the wallet.
func Balance(ctx context.Context, w Wallet) (chain.Value, error) {
	utxos, err := w.Utxos(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying wallet utxos: %w", err)
	}
	total := chain.Value{}
	for _, utxo := range utxos {
		total.Add(utxo.Value)
	}
	return total, nil
}
