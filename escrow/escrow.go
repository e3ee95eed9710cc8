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

// Package escrow implements the escrow state machines: the simple
// two-party student/teacher escrow and the three-phase milestone
// variant. Both duplicate the on-chain preconditions locally so a
// doomed transaction fails before it is ever submitted.
package escrow

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/tx"
	"github.com/blinklabs-io/classly/wallet"
)

var (
	// ErrInvalidParty is returned when an address lacks a resolvable
	// payment credential or does not match the datum's party.
	ErrInvalidParty = errors.New("invalid escrow party")
	// ErrDeadlineNotReached is returned when a time-gated operation
	// is attempted before its deadline.
	ErrDeadlineNotReached = errors.New("deadline not reached")
	// ErrNotFound is returned when no escrow output matches a query.
	ErrNotFound = errors.New("escrow not found")
	// ErrMissingProof is returned when a release request lacks its
	// required ownership or oracle proof.
	ErrMissingProof = errors.New("missing proof")
)

// Config is the wiring for an escrow service.
type Config struct {
	Logger    *slog.Logger
	Provider  chain.Provider
	Wallet    wallet.Wallet
	Script    *blueprint.ScriptReference
	NetworkID uint8
	// Now is the clock used for deadline checks. Defaults to
	// time.Now.
	Now func() time.Time
}

// Escrow is the simple two-party escrow service.
type Escrow struct {
	logger        *slog.Logger
	provider      chain.Provider
	wallet        wallet.Wallet
	script        *blueprint.ScriptReference
	scriptAddress string
	now           func() time.Time
}

// New creates a two-party escrow service bound to the escrow
// spending validator.
func New(cfg Config) (*Escrow, error) {
	if cfg.Provider == nil {
		return nil, errors.New("escrow: no provider")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("escrow: no wallet")
	}
	if cfg.Script == nil {
		return nil, errors.New("escrow: no validator script")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	addr, err := cfg.Script.Address(cfg.NetworkID)
	if err != nil {
		return nil, err
	}
	return &Escrow{
		logger:        logger.With("component", "escrow"),
		provider:      cfg.Provider,
		wallet:        cfg.Wallet,
		script:        cfg.Script,
		scriptAddress: addr.String(),
		now:           now,
	}, nil
}

// ScriptAddress returns the escrow script address for this network.
func (e *Escrow) ScriptAddress() string {
	return e.scriptAddress
}

// LockParams describes a new escrow lock.
type LockParams struct {
	StudentAddress string
	TeacherAddress string
	Amount         uint64
	NftPolicyID    string
	NftAssetName   string
	RefundDeadline time.Time
}

// Lock pays the amount to the escrow script under an inline datum
// naming both parties. Returns the submitted transaction id.
func (e *Escrow) Lock(
	ctx context.Context,
	params LockParams,
) (string, error) {
	studentHash, err := wallet.PaymentKeyHash(params.StudentAddress)
	if err != nil {
		return "", fmt.Errorf("%w: student: %s", ErrInvalidParty, err)
	}
	teacherHash, err := wallet.PaymentKeyHash(params.TeacherAddress)
	if err != nil {
		return "", fmt.Errorf("%w: teacher: %s", ErrInvalidParty, err)
	}
	policyBytes, err := hex.DecodeString(params.NftPolicyID)
	if err != nil {
		return "", fmt.Errorf("invalid nft policy id: %w", err)
	}
	if params.Amount == 0 {
		return "", errors.New("escrow lock amount must be positive")
	}

	datum := Datum{
		StudentKeyHash: studentHash,
		TeacherKeyHash: teacherHash,
		LockedAmount:   int64(params.Amount), // #nosec G115
		NftPolicyID:    policyBytes,
		NftAssetName:   []byte(params.NftAssetName),
		RefundDeadline: params.RefundDeadline.UnixMilli(),
	}
	datumBytes, err := datum.MarshalPlutus()
	if err != nil {
		return "", fmt.Errorf("encoding escrow datum: %w", err)
	}

	walletUtxos, err := e.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		PayTo(
			e.scriptAddress,
			chain.Value{chain.LovelaceUnit: params.Amount},
			datumBytes,
		).
		ChangeTo(params.StudentAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := e.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	e.logger.Info(
		"locked escrow funds",
		"amount", params.Amount,
		"tx_id", txID,
	)
	return txID, nil
}

// ReleaseParams describes a teacher release. NftProofUtxo is the
// output holding the classroom NFT; it is referenced read-only as
// the ownership proof.
type ReleaseParams struct {
	TeacherAddress string
	EscrowUtxo     chain.Utxo
	NftProofUtxo   chain.Utxo
}

// Release pays the locked amount to the teacher. Requires the
// teacher's signature and a reference to the classroom NFT output.
func (e *Escrow) Release(
	ctx context.Context,
	params ReleaseParams,
) (string, error) {
	var datum Datum
	if err := datum.UnmarshalPlutus(params.EscrowUtxo.InlineDatum); err != nil {
		return "", fmt.Errorf("decoding escrow datum: %w", err)
	}
	teacherHash, err := wallet.PaymentKeyHash(params.TeacherAddress)
	if err != nil {
		return "", fmt.Errorf("%w: teacher: %s", ErrInvalidParty, err)
	}
	if !bytes.Equal(teacherHash, datum.TeacherKeyHash) {
		return "", fmt.Errorf(
			"%w: %s is not the escrow teacher",
			ErrInvalidParty,
			params.TeacherAddress,
		)
	}
	nftUnit := hex.EncodeToString(datum.NftPolicyID) +
		hex.EncodeToString(datum.NftAssetName)
	if !params.NftProofUtxo.HasAsset(nftUnit) {
		return "", fmt.Errorf(
			"%w: reference output does not hold %s",
			ErrMissingProof,
			nftUnit,
		)
	}

	redeemer, err := ReleaseRedeemer()
	if err != nil {
		return "", err
	}
	walletUtxos, err := e.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		SpendScript(params.EscrowUtxo, e.script.Script, redeemer).
		ReadFrom(params.NftProofUtxo).
		PayTo(
			params.TeacherAddress,
			chain.Value{
				chain.LovelaceUnit: uint64(datum.LockedAmount),
			},
			nil,
		).
		RequireSigner(teacherHash).
		ChangeTo(params.TeacherAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := e.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	e.logger.Info(
		"released escrow funds",
		"amount", datum.LockedAmount,
		"tx_id", txID,
	)
	return txID, nil
}

// RefundParams describes a student refund after the deadline.
type RefundParams struct {
	StudentAddress string
	EscrowUtxo     chain.Utxo
}

// Refund returns the locked amount to the student. Valid only at or
// after the refund deadline; the transaction's validity interval
// starts at the deadline so the validator can check the same bound.
func (e *Escrow) Refund(
	ctx context.Context,
	params RefundParams,
) (string, error) {
	var datum Datum
	if err := datum.UnmarshalPlutus(params.EscrowUtxo.InlineDatum); err != nil {
		return "", fmt.Errorf("decoding escrow datum: %w", err)
	}
	studentHash, err := wallet.PaymentKeyHash(params.StudentAddress)
	if err != nil {
		return "", fmt.Errorf("%w: student: %s", ErrInvalidParty, err)
	}
	if !bytes.Equal(studentHash, datum.StudentKeyHash) {
		return "", fmt.Errorf(
			"%w: %s is not the escrow student",
			ErrInvalidParty,
			params.StudentAddress,
		)
	}
	if e.now().UnixMilli() < datum.RefundDeadline {
		return "", fmt.Errorf(
			"%w: refund deadline is %s",
			ErrDeadlineNotReached,
			time.UnixMilli(datum.RefundDeadline).UTC(),
		)
	}

	redeemer, err := RefundRedeemer()
	if err != nil {
		return "", err
	}
	walletUtxos, err := e.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		SpendScript(params.EscrowUtxo, e.script.Script, redeemer).
		PayTo(
			params.StudentAddress,
			chain.Value{
				chain.LovelaceUnit: uint64(datum.LockedAmount),
			},
			nil,
		).
		RequireSigner(studentHash).
		ValidFrom(uint64(datum.RefundDeadline)). // #nosec G115
		ChangeTo(params.StudentAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := e.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	e.logger.Info(
		"refunded escrow funds",
		"amount", datum.LockedAmount,
		"tx_id", txID,
	)
	return txID, nil
}

// Utxos returns all outputs currently at the escrow script address.
func (e *Escrow) Utxos(ctx context.Context) ([]chain.Utxo, error) {
	return e.provider.UtxosAt(ctx, e.scriptAddress)
}

// Records yields the escrow datums among the given outputs,
// silently skipping outputs whose datum does not decode. The
// sequence is restartable.
func Records(utxos []chain.Utxo) iter.Seq2[chain.Utxo, Datum] {
	return func(yield func(chain.Utxo, Datum) bool) {
		for _, utxo := range utxos {
			if len(utxo.InlineDatum) == 0 {
				continue
			}
			var datum Datum
			if err := datum.UnmarshalPlutus(utxo.InlineDatum); err != nil {
				continue
			}
			if !yield(utxo, datum) {
				return
			}
		}
	}
}

// Find returns the escrow output for the given student/teacher
// pair, or ErrNotFound.
func (e *Escrow) Find(
	ctx context.Context,
	studentAddress string,
	teacherAddress string,
) (chain.Utxo, Datum, error) {
	studentHash, err := wallet.PaymentKeyHash(studentAddress)
	if err != nil {
		return chain.Utxo{}, Datum{}, fmt.Errorf(
			"%w: student: %s", ErrInvalidParty, err,
		)
	}
	teacherHash, err := wallet.PaymentKeyHash(teacherAddress)
	if err != nil {
		return chain.Utxo{}, Datum{}, fmt.Errorf(
			"%w: teacher: %s", ErrInvalidParty, err,
		)
	}
	utxos, err := e.Utxos(ctx)
	if err != nil {
		return chain.Utxo{}, Datum{}, err
	}
	for utxo, datum := range Records(utxos) {
		if bytes.Equal(datum.StudentKeyHash, studentHash) &&
			bytes.Equal(datum.TeacherKeyHash, teacherHash) {
			return utxo, datum, nil
		}
	}
	return chain.Utxo{}, Datum{}, fmt.Errorf(
		"%w: no escrow for student %s and teacher %s",
		ErrNotFound,
		studentAddress,
		teacherAddress,
	)
}

// Details is a display-oriented view of an escrow datum.
type Details struct {
	StudentKeyHash string
	TeacherKeyHash string
	LockedAmount   int64
	RefundDeadline time.Time
	NftPolicyID    string
	NftAssetName   string
}

// DatumDetails converts a datum into its display view.
func DatumDetails(datum Datum) Details {
	return Details{
		StudentKeyHash: hex.EncodeToString(datum.StudentKeyHash),
		TeacherKeyHash: hex.EncodeToString(datum.TeacherKeyHash),
		LockedAmount:   datum.LockedAmount,
		RefundDeadline: time.UnixMilli(datum.RefundDeadline).UTC(),
		NftPolicyID:    hex.EncodeToString(datum.NftPolicyID),
		NftAssetName:   string(datum.NftAssetName),
	}
}

func (e *Escrow) finalize(
	ctx context.Context,
	draft *tx.Draft,
) (string, error) {
	signed, err := e.wallet.SignTx(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	txID, err := e.provider.SubmitTx(ctx, signed)
	if err != nil {
		return "", err
	}
	return txID, nil
}
