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

package nft

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/plutus"
	"github.com/blinklabs-io/classly/tx"
	"github.com/blinklabs-io/classly/wallet"
)

// ErrInvalidCompletionProof is returned when a completion proof
// fails verification.
var ErrInvalidCompletionProof = errors.New("invalid completion proof")

// CompletionAssetNamePrefix is prepended to the resource id to form
// the completion NFT asset name.
const CompletionAssetNamePrefix = "COMPLETION_"

// CompletionProof is an oracle-signed attestation that a sender
// completed the full resource.
type CompletionProof struct {
	SenderKeyHash        []byte
	ResourceID           []byte
	CompletionPercentage int
	Timestamp            int64
	Nonce                []byte
	Signature            []byte
}

func (p *CompletionProof) message() []byte {
	return fmt.Appendf(
		nil,
		"%x|%x|%d|%d|%x",
		p.SenderKeyHash,
		p.ResourceID,
		p.CompletionPercentage,
		p.Timestamp,
		p.Nonce,
	)
}

// Verify checks the proof signature against the oracle key. Only
// full completion qualifies.
func (p *CompletionProof) Verify(oraclePubKey ed25519.PublicKey) error {
	if p.CompletionPercentage != 100 {
		return fmt.Errorf(
			"%w: completion is %d%%, want 100",
			ErrInvalidCompletionProof,
			p.CompletionPercentage,
		)
	}
	if len(oraclePubKey) != ed25519.PublicKeySize {
		return fmt.Errorf(
			"%w: oracle key is %d bytes",
			ErrInvalidCompletionProof,
			len(oraclePubKey),
		)
	}
	if !ed25519.Verify(oraclePubKey, p.message(), p.Signature) {
		return fmt.Errorf("%w: bad signature", ErrInvalidCompletionProof)
	}
	return nil
}

// CompletionRedeemer builds the completion mint redeemer carrying
// the proof and the consumed one-time UTXO reference.
func CompletionRedeemer(
	proof *CompletionProof,
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
		plutus.Bytes(proof.SenderKeyHash),
		plutus.Bytes(proof.ResourceID),
		plutus.Bytes(proof.Signature),
		plutus.Integer(proof.Timestamp),
		plutus.Bytes(proof.Nonce),
		plutus.Constr(
			0,
			plutus.Constr(0, plutus.Bytes(txHash)),
			plutus.Integer(int64(oneTime.Index)),
		),
	))
}

// MintCompletionParams describes a completion NFT mint.
type MintCompletionParams struct {
	SenderAddress string
	Proof         *CompletionProof
	OraclePubKey  ed25519.PublicKey
}

// MintCompletion issues the completion NFT to the sender after
// verifying the oracle proof.
func (i *Issuer) MintCompletion(
	ctx context.Context,
	params MintCompletionParams,
) (*MintResult, error) {
	if params.Proof == nil {
		return nil, fmt.Errorf(
			"%w: no proof", ErrInvalidCompletionProof,
		)
	}
	if err := params.Proof.Verify(params.OraclePubKey); err != nil {
		return nil, err
	}
	senderHash, err := wallet.PaymentKeyHash(params.SenderAddress)
	if err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if !bytes.Equal(senderHash, params.Proof.SenderKeyHash) {
		return nil, fmt.Errorf(
			"%w: proof names a different sender",
			ErrInvalidCompletionProof,
		)
	}

	walletUtxos, err := i.wallet.Utxos(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying wallet utxos: %w", err)
	}
	oneTime, err := chain.SelectUnique(walletUtxos)
	if err != nil {
		return nil, err
	}
	redeemer, err := CompletionRedeemer(params.Proof, oneTime.Ref)
	if err != nil {
		return nil, err
	}

	assetName := CompletionAssetNamePrefix + string(params.Proof.ResourceID)
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
			params.SenderAddress,
			chain.Value{
				chain.LovelaceUnit: chain.MinSelectableLovelace,
				unit:               1,
			},
			nil,
		).
		ChangeTo(params.SenderAddress).
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
		"minted completion nft",
		"resource_id", string(params.Proof.ResourceID),
		"unit", unit,
		"tx_id", txID,
	)
	return &MintResult{
		TxID:      txID,
		PolicyID:  i.policy.PolicyID(),
		AssetName: assetName,
		Unit:      unit,
	}, nil
}
