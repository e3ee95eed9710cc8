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

// Package tx assembles transaction drafts from inputs, script
// spends, mints, and outputs, and balances them against a change
// address. Drafts are handed to a wallet for signing and to a
// provider for submission.
package tx

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrBuild is returned when a draft is structurally invalid.
	ErrBuild = errors.New("transaction build failed")
	// ErrInsufficientFunds is returned when the selected inputs
	// cannot cover the outputs plus the fee.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

const (
	// Linear fee model defaults, applied to an average
	// transaction size when no fee override is given.
	defaultMinFeeCoefficient = 44
	defaultMinFeeConstant    = 155381
	avgTxSize                = 600
)

// Output is a transaction output to be created.
type Output struct {
	Address     string
	Value       chain.Value
	InlineDatum []byte
}

// ScriptInput spends a UTXO locked at a script address. The
// redeemer is already-encoded datum bytes.
type ScriptInput struct {
	Utxo     chain.Utxo
	Script   []byte
	Redeemer []byte
}

// Mint creates or destroys assets under a minting policy. Asset
// quantities are keyed by hex-encoded asset name; negative
// quantities burn.
type Mint struct {
	PolicyID string
	Script   []byte
	Redeemer []byte
	Assets   map[string]int64
}

// Draft is a balanced, unsigned transaction. The BodyCbor carries
// the inputs, outputs, fee, and TTL; the remaining fields describe
// the script context the signing wallet must attach as witnesses.
// Validity bounds are unix milliseconds, matching the time values
// carried in datums; the signing wallet translates them to slots.
type Draft struct {
	Inputs          []chain.Utxo
	ReferenceInputs []chain.Utxo
	ScriptInputs    []ScriptInput
	Mints           []Mint
	Outputs         []Output
	RequiredSigners [][]byte
	ValidFrom       uint64
	ValidTo         uint64
	Fee             uint64

	bodyCbor []byte
}

// BodyCbor returns the CBOR-encoded transaction body.
func (d *Draft) BodyCbor() []byte {
	return d.bodyCbor
}

// Hash returns the hex-encoded hash of the transaction body. This
// is the transaction ID once the draft is signed and submitted.
func (d *Draft) Hash() string {
	bodyHash := blake2b.Sum256(d.bodyCbor)
	return hex.EncodeToString(bodyHash[:])
}

// Builder accumulates transaction pieces and balances them on
// Build. Methods record the first error and make Build fail, so
// call sites can chain without checking each step.
type Builder struct {
	inputs          []chain.Utxo
	referenceInputs []chain.Utxo
	scriptInputs    []ScriptInput
	mints           []Mint
	outputs         []Output
	requiredSigners [][]byte
	validFrom       uint64
	validTo         uint64
	changeAddress   string
	fee             uint64
	err             error
}

// NewBuilder creates an empty transaction builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SpendFrom adds wallet-held inputs.
func (b *Builder) SpendFrom(utxos ...chain.Utxo) *Builder {
	b.inputs = append(b.inputs, utxos...)
	return b
}

// ReadFrom adds read-only reference inputs. They are visible to
// validators but not consumed and do not count toward the balance.
func (b *Builder) ReadFrom(utxos ...chain.Utxo) *Builder {
	b.referenceInputs = append(b.referenceInputs, utxos...)
	return b
}

// SpendScript adds a script-locked input with its validator and
// redeemer.
func (b *Builder) SpendScript(
	utxo chain.Utxo,
	script []byte,
	redeemer []byte,
) *Builder {
	if len(script) == 0 {
		b.setErr(fmt.Errorf("%w: empty script", ErrBuild))
		return b
	}
	b.scriptInputs = append(b.scriptInputs, ScriptInput{
		Utxo:     utxo,
		Script:   script,
		Redeemer: redeemer,
	})
	return b
}

// MintAssets adds a mint (or burn, with negative quantities) under
// the given policy.
func (b *Builder) MintAssets(m Mint) *Builder {
	if len(m.Assets) == 0 {
		b.setErr(fmt.Errorf("%w: mint with no assets", ErrBuild))
		return b
	}
	b.mints = append(b.mints, m)
	return b
}

// PayTo adds an output.
func (b *Builder) PayTo(
	address string,
	value chain.Value,
	inlineDatum []byte,
) *Builder {
	if address == "" {
		b.setErr(fmt.Errorf("%w: output with empty address", ErrBuild))
		return b
	}
	b.outputs = append(b.outputs, Output{
		Address:     address,
		Value:       value,
		InlineDatum: inlineDatum,
	})
	return b
}

// RequireSigner marks a payment key hash whose signature the
// validator will check.
func (b *Builder) RequireSigner(keyHash []byte) *Builder {
	b.requiredSigners = append(b.requiredSigners, keyHash)
	return b
}

// ValidFrom sets the lower bound of the validity interval, in unix
// milliseconds.
func (b *Builder) ValidFrom(unixMs uint64) *Builder {
	b.validFrom = unixMs
	return b
}

// ValidTo sets the upper bound of the validity interval, in unix
// milliseconds.
func (b *Builder) ValidTo(unixMs uint64) *Builder {
	b.validTo = unixMs
	return b
}

// ChangeTo sets the address receiving the balancing change output.
func (b *Builder) ChangeTo(address string) *Builder {
	b.changeAddress = address
	return b
}

// Fee overrides the estimated fee.
func (b *Builder) Fee(lovelace uint64) *Builder {
	b.fee = lovelace
	return b
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build balances the transaction and returns a draft ready for
// signing. The change output absorbs whatever the inputs and mints
// provide beyond the declared outputs and the fee.
func (b *Builder) Build() (*Draft, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.inputs) == 0 && len(b.scriptInputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrBuild)
	}
	if b.changeAddress == "" {
		return nil, fmt.Errorf("%w: no change address", ErrBuild)
	}

	fee := b.fee
	if fee == 0 {
		fee = uint64(
			defaultMinFeeCoefficient*avgTxSize + defaultMinFeeConstant,
		)
	}

	change, err := b.balance(fee)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, len(b.outputs), len(b.outputs)+1)
	copy(outputs, b.outputs)
	if change.Lovelace() > 0 || !change.OnlyLovelace() {
		outputs = append(outputs, Output{
			Address: b.changeAddress,
			Value:   change,
		})
	}

	bodyCbor, err := encodeBody(
		b.inputs, b.scriptInputs, outputs, fee,
	)
	if err != nil {
		return nil, err
	}

	return &Draft{
		Inputs:          b.inputs,
		ReferenceInputs: b.referenceInputs,
		ScriptInputs:    b.scriptInputs,
		Mints:           b.mints,
		Outputs:         outputs,
		RequiredSigners: b.requiredSigners,
		ValidFrom:       b.validFrom,
		ValidTo:         b.validTo,
		Fee:             fee,
		bodyCbor:        bodyCbor,
	}, nil
}

// balance computes the change value, or fails when any asset is
// overdrawn.
func (b *Builder) balance(fee uint64) (chain.Value, error) {
	in := chain.Value{}
	for _, utxo := range b.inputs {
		in.Add(utxo.Value)
	}
	for _, si := range b.scriptInputs {
		in.Add(si.Utxo.Value)
	}

	// Mints add to the spendable pool, burns draw from it
	burned := map[string]uint64{}
	for _, m := range b.mints {
		for assetName, qty := range m.Assets {
			unit := m.PolicyID + assetName
			if qty >= 0 {
				in[unit] += uint64(qty)
			} else {
				burned[unit] += uint64(-qty)
			}
		}
	}

	out := chain.Value{}
	for _, o := range b.outputs {
		out.Add(o.Value)
	}
	out[chain.LovelaceUnit] += fee
	for unit, qty := range burned {
		out[unit] += qty
	}

	change := chain.Value{}
	for unit, available := range in {
		needed := out[unit]
		if available < needed {
			return nil, fmt.Errorf(
				"%w: need %d of %s, have %d",
				ErrInsufficientFunds,
				needed,
				unit,
				available,
			)
		}
		if leftover := available - needed; leftover > 0 {
			change[unit] = leftover
		}
	}
	for unit, needed := range out {
		if _, ok := in[unit]; !ok && needed > 0 {
			return nil, fmt.Errorf(
				"%w: need %d of %s, have 0",
				ErrInsufficientFunds,
				needed,
				unit,
			)
		}
	}
	return change, nil
}

// encodeBody serializes the draft body as a Conway-era transaction
// body. Only ADA amounts are representable in the serialized
// outputs; the full multi-asset values and validity bounds travel
// on the Draft for the signing wallet.
func encodeBody(
	inputs []chain.Utxo,
	scriptInputs []ScriptInput,
	outputs []Output,
	fee uint64,
) ([]byte, error) {
	txInputs := make(
		[]shelley.ShelleyTransactionInput, 0,
		len(inputs)+len(scriptInputs),
	)
	for _, utxo := range inputs {
		in, err := convertInput(utxo.Ref)
		if err != nil {
			return nil, err
		}
		txInputs = append(txInputs, in)
	}
	for _, si := range scriptInputs {
		in, err := convertInput(si.Utxo.Ref)
		if err != nil {
			return nil, err
		}
		txInputs = append(txInputs, in)
	}

	txOutputs := make(
		[]babbage.BabbageTransactionOutput, 0, len(outputs),
	)
	for _, o := range outputs {
		addr, err := lcommon.NewAddress(o.Address)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid output address %s: %s",
				ErrBuild,
				o.Address,
				err,
			)
		}
		txOutputs = append(
			txOutputs,
			babbage.BabbageTransactionOutput{
				OutputAddress: addr,
				OutputAmount: mary.MaryTransactionOutputValue{
					Amount: o.Value.Lovelace(),
				},
			},
		)
	}

	body := conway.ConwayTransactionBody{
		TxInputs:  conway.NewConwayTransactionInputSet(txInputs),
		TxOutputs: txOutputs,
		TxFee:     fee,
	}
	bodyCbor, err := cbor.Encode(&body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode body: %s", ErrBuild, err)
	}
	return bodyCbor, nil
}

// convertInput validates an out ref before handing it to
// NewShelleyTransactionInput, which panics on malformed input.
func convertInput(
	ref chain.OutRef,
) (shelley.ShelleyTransactionInput, error) {
	hashBytes, err := hex.DecodeString(ref.TxID)
	if err != nil {
		return shelley.ShelleyTransactionInput{}, fmt.Errorf(
			"%w: invalid tx hash hex %q: %s",
			ErrBuild,
			ref.TxID,
			err,
		)
	}
	if len(hashBytes) != 32 {
		return shelley.ShelleyTransactionInput{}, fmt.Errorf(
			"%w: tx hash must be 32 bytes, got %d",
			ErrBuild,
			len(hashBytes),
		)
	}
	return shelley.NewShelleyTransactionInput(
		ref.TxID,
		int(ref.Index),
	), nil
}
