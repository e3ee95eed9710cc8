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

// Package chain defines the UTXO model shared by the off-chain layer
// and the contract for the remote chain-indexing provider.
package chain

import (
	"context"
	"errors"
	"fmt"
)

// LovelaceUnit is the asset unit of the base currency.
const LovelaceUnit = "lovelace"

var (
	// ErrNoEligibleUtxo is returned when UTXO selection finds no
	// candidate matching the selection policy.
	ErrNoEligibleUtxo = errors.New("no eligible utxo")
	// ErrStaleUtxo is returned when a transaction consumed a UTXO
	// that another confirmed transaction already spent. The caller
	// lost an optimistic-concurrency race and may re-query and
	// retry.
	ErrStaleUtxo = errors.New("utxo already spent")
	// ErrSubmission is returned when the ledger rejected a
	// submitted transaction for any reason other than a spent
	// input.
	ErrSubmission = errors.New("transaction rejected")
	// ErrProvider is returned when the provider rejected the
	// request (bad credential, rate limit, malformed request).
	ErrProvider = errors.New("provider rejected request")
	// ErrNetwork is returned when the provider could not be
	// reached.
	ErrNetwork = errors.New("provider unreachable")
)

// OutRef identifies a transaction output.
type OutRef struct {
	TxID  string
	Index uint32
}

func (o OutRef) String() string {
	return fmt.Sprintf("%s#%d", o.TxID, o.Index)
}

// Value maps asset units to amounts. The base currency uses
// LovelaceUnit; native assets use policy ID + hex asset name.
type Value map[string]uint64

// Lovelace returns the base currency amount.
func (v Value) Lovelace() uint64 {
	return v[LovelaceUnit]
}

// OnlyLovelace returns true when the value holds no native assets.
func (v Value) OnlyLovelace() bool {
	for unit, amount := range v {
		if unit != LovelaceUnit && amount > 0 {
			return false
		}
	}
	return true
}

// Add accumulates other into v.
func (v Value) Add(other Value) {
	for unit, amount := range other {
		v[unit] += amount
	}
}

// Utxo is an unspent transaction output. Identity is the OutRef; a
// UTXO is immutable and consumed exactly once by a confirmed
// transaction.
type Utxo struct {
	Ref         OutRef
	Address     string
	Value       Value
	InlineDatum []byte
}

// HasAsset returns true when the UTXO carries at least one of the
// given asset unit.
func (u *Utxo) HasAsset(unit string) bool {
	return u.Value[unit] >= 1
}

// Provider is the remote chain-indexing and submission collaborator.
type Provider interface {
	// Health verifies the provider is reachable and the
	// credential is accepted.
	Health(ctx context.Context) error
	// UtxosAt returns the unspent outputs at an address.
	UtxosAt(ctx context.Context, address string) ([]Utxo, error)
	// SubmitTx submits a signed transaction and returns its
	// identifier.
	SubmitTx(ctx context.Context, txCbor []byte) (string, error)
	// AwaitConfirmation blocks until the transaction is visible
	// on-chain or the context is done.
	AwaitConfirmation(ctx context.Context, txID string) error
}
