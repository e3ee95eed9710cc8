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

// Package nft mints and burns classroom NFTs. Each mint consumes a
// deterministically selected one-time UTXO whose reference is
// embedded in the redeemer, so the minting policy can prove the
// event is not replayable.
package nft

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/plutus"
	"github.com/blinklabs-io/classly/tx"
	"github.com/blinklabs-io/classly/wallet"
	"github.com/google/uuid"
)

var (
	// ErrAssetNotFound is returned when the target UTXO does not
	// hold the asset being burned.
	ErrAssetNotFound = errors.New("asset not found in utxo")
	// ErrInvalidClassroomID is returned for classroom ids outside
	// the allowed character set or length.
	ErrInvalidClassroomID = errors.New("invalid classroom id")
)

// AssetNamePrefix is prepended to the classroom id to form the
// asset name.
const AssetNamePrefix = "CLASSROOM_"

var classroomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

// ValidateClassroomID checks a classroom id against the allowed
// pattern.
func ValidateClassroomID(id string) error {
	if !classroomIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidClassroomID, id)
	}
	return nil
}

// GenerateClassroomID returns a fresh identifier that satisfies
// ValidateClassroomID.
func GenerateClassroomID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "_")
	return id[:32]
}

// AssetName derives the on-chain asset name for a classroom.
func AssetName(classroomID string) string {
	return AssetNamePrefix + classroomID
}

// Unit combines a policy id and an asset name into the globally
// unique asset unit.
func Unit(policyID string, assetName string) string {
	return policyID + hex.EncodeToString([]byte(assetName))
}

// Config is the wiring for the NFT issuer.
type Config struct {
	Logger   *slog.Logger
	Provider chain.Provider
	Wallet   wallet.Wallet
	// Policy is the classroom NFT minting policy.
	Policy *blueprint.ScriptReference
}

// Issuer mints and burns classroom NFTs under a single minting
// policy.
type Issuer struct {
	logger   *slog.Logger
	provider chain.Provider
	wallet   wallet.Wallet
	policy   *blueprint.ScriptReference
}

// New creates an NFT issuer.
func New(cfg Config) (*Issuer, error) {
	if cfg.Provider == nil {
		return nil, errors.New("nft: no provider")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("nft: no wallet")
	}
	if cfg.Policy == nil {
		return nil, errors.New("nft: no minting policy")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Issuer{
		logger:   logger.With("component", "nft"),
		provider: cfg.Provider,
		wallet:   cfg.Wallet,
		policy:   cfg.Policy,
	}, nil
}

// PolicyID returns the classroom NFT policy identifier.
func (i *Issuer) PolicyID() string {
	return i.policy.PolicyID()
}

// MintRedeemer builds the mint redeemer embedding the teacher
// credential, the classroom id, and the consumed one-time UTXO
// reference.
func MintRedeemer(
	teacherKeyHash []byte,
	classroomID string,
	oneTime chain.OutRef,
) ([]byte, error) {
	txHash, err := hex.DecodeString(oneTime.TxID)
	if err != nil {
		return nil, fmt.Errorf(
			"invalid one-time utxo tx hash %q: %w",
			oneTime.TxID,
			err,
		)
	}
	return plutus.Encode(plutus.Constr(
		plutus.MintTagMint,
		plutus.Constr(
			0,
			plutus.Bytes(teacherKeyHash),
			plutus.Bytes([]byte(classroomID)),
			plutus.Constr(
				0,
				plutus.Constr(0, plutus.Bytes(txHash)),
				plutus.Integer(int64(oneTime.Index)),
			),
		),
	))
}

// BurnRedeemer selects the burn branch of the minting policy.
func BurnRedeemer() ([]byte, error) {
	return plutus.Encode(plutus.Constr(plutus.MintTagBurn))
}

// MintResult describes a submitted mint.
type MintResult struct {
	TxID      string
	PolicyID  string
	AssetName string
	Unit      string
}

// MintParams describes a classroom NFT mint.
type MintParams struct {
	TeacherAddress string
	ClassroomID    string
}

// Mint issues one classroom NFT to the teacher. The one-time UTXO
// is selected deterministically from the teacher's wallet so a
// retry of the same mint reproduces the same proof until the UTXO
// is consumed.
func (i *Issuer) Mint(
	ctx context.Context,
	params MintParams,
) (*MintResult, error) {
	if err := ValidateClassroomID(params.ClassroomID); err != nil {
		return nil, err
	}
	teacherHash, err := wallet.PaymentKeyHash(params.TeacherAddress)
	if err != nil {
		return nil, fmt.Errorf("teacher address: %w", err)
	}

	walletUtxos, err := i.wallet.Utxos(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying wallet utxos: %w", err)
	}
	oneTime, err := chain.SelectUnique(walletUtxos)
	if err != nil {
		return nil, err
	}

	redeemer, err := MintRedeemer(
		teacherHash, params.ClassroomID, oneTime.Ref,
	)
	if err != nil {
		return nil, err
	}

	assetName := AssetName(params.ClassroomID)
	assetNameHex := hex.EncodeToString([]byte(assetName))
	unit := i.policy.PolicyID() + assetNameHex

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		MintAssets(tx.Mint{
			PolicyID: i.policy.PolicyID(),
			Script:   i.policy.Script,
			Redeemer: redeemer,
			Assets:   map[string]int64{assetNameHex: 1},
		}).
		PayTo(
			params.TeacherAddress,
			chain.Value{
				chain.LovelaceUnit: chain.MinSelectableLovelace,
				unit:               1,
			},
			nil,
		).
		ChangeTo(params.TeacherAddress).
		Build()
	if err != nil {
		return nil, err
	}

	signed, err := i.wallet.SignTx(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	txID, err := i.provider.SubmitTx(ctx, signed)
	if err != nil {
		return nil, err
	}
	i.logger.Info(
		"minted classroom nft",
		"classroom_id", params.ClassroomID,
		"unit", unit,
		"one_time_utxo", oneTime.Ref.String(),
		"tx_id", txID,
	)
	return &MintResult{
		TxID:      txID,
		PolicyID:  i.policy.PolicyID(),
		AssetName: assetName,
		Unit:      unit,
	}, nil
}

// BurnParams describes a classroom NFT burn.
type BurnParams struct {
	OwnerAddress string
	NftUtxo      chain.Utxo
	AssetName    string
}

// Burn destroys the classroom NFT by minting a negative quantity,
// consuming the UTXO that holds it.
func (i *Issuer) Burn(
	ctx context.Context,
	params BurnParams,
) (string, error) {
	assetNameHex := hex.EncodeToString([]byte(params.AssetName))
	unit := i.policy.PolicyID() + assetNameHex
	if !params.NftUtxo.HasAsset(unit) {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, unit)
	}

	redeemer, err := BurnRedeemer()
	if err != nil {
		return "", err
	}
	walletUtxos, err := i.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}
	// The NFT-holding UTXO may already be in the wallet set
	inputs := []chain.Utxo{params.NftUtxo}
	for _, utxo := range walletUtxos {
		if utxo.Ref != params.NftUtxo.Ref {
			inputs = append(inputs, utxo)
		}
	}

	draft, err := tx.NewBuilder().
		SpendFrom(inputs...).
		MintAssets(tx.Mint{
			PolicyID: i.policy.PolicyID(),
			Script:   i.policy.Script,
			Redeemer: redeemer,
			Assets:   map[string]int64{assetNameHex: -1},
		}).
		ChangeTo(params.OwnerAddress).
		Build()
	if err != nil {
		return "", err
	}

	signed, err := i.wallet.SignTx(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	txID, err := i.provider.SubmitTx(ctx, signed)
	if err != nil {
		return "", err
	}
	i.logger.Info(
		"burned classroom nft",
		"unit", unit,
		"tx_id", txID,
	)
	return txID, nil
}

// Owned is an NFT found in an address's UTXO set.
type Owned struct {
	Unit      string
	AssetName string
	Utxo      chain.Utxo
}

// OwnedNFTs lists the assets under the issuer's policy held at the
// given address.
func (i *Issuer) OwnedNFTs(
	ctx context.Context,
	address string,
) ([]Owned, error) {
	utxos, err := i.provider.UtxosAt(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("querying utxos at %s: %w", address, err)
	}
	policyID := i.policy.PolicyID()
	var ret []Owned
	for _, utxo := range utxos {
		for unit, amount := range utxo.Value {
			if amount == 0 || !strings.HasPrefix(unit, policyID) {
				continue
			}
			nameBytes, err := hex.DecodeString(
				strings.TrimPrefix(unit, policyID),
			)
			if err != nil {
				continue
			}
			ret = append(ret, Owned{
				Unit:      unit,
				AssetName: string(nameBytes),
				Utxo:      utxo,
			})
		}
	}
	return ret, nil
}

// HasNFT reports whether the address holds the named classroom NFT.
func (i *Issuer) HasNFT(
	ctx context.Context,
	address string,
	assetName string,
) (bool, error) {
	_, err := i.FindNFTUtxo(ctx, address, assetName)
	if errors.Is(err, ErrAssetNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindNFTUtxo returns the UTXO at the address holding the named
// classroom NFT, or ErrAssetNotFound.
func (i *Issuer) FindNFTUtxo(
	ctx context.Context,
	address string,
	assetName string,
) (chain.Utxo, error) {
	utxos, err := i.provider.UtxosAt(ctx, address)
	if err != nil {
		return chain.Utxo{}, fmt.Errorf(
			"querying utxos at %s: %w", address, err,
		)
	}
	unit := Unit(i.policy.PolicyID(), assetName)
	for _, utxo := range utxos {
		if utxo.HasAsset(unit) {
			return utxo, nil
		}
	}
	return chain.Utxo{}, fmt.Errorf("%w: %s", ErrAssetNotFound, unit)
}
