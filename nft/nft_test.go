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
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/plutus"
	"github.com/blinklabs-io/classly/tx"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	address string
	utxos   []chain.Utxo
	signed  *tx.Draft
}

func (f *fakeWallet) Address(_ context.Context) (string, error) {
	return f.address, nil
}

func (f *fakeWallet) Utxos(_ context.Context) ([]chain.Utxo, error) {
	return f.utxos, nil
}

func (f *fakeWallet) SignTx(
	_ context.Context,
	draft *tx.Draft,
) ([]byte, error) {
	f.signed = draft
	return draft.BodyCbor(), nil
}

type fakeProvider struct {
	utxosByAddress map[string][]chain.Utxo
	submitErr      error
}

func (f *fakeProvider) Health(_ context.Context) error {
	return nil
}

func (f *fakeProvider) UtxosAt(
	_ context.Context,
	address string,
) ([]chain.Utxo, error) {
	return f.utxosByAddress[address], nil
}

func (f *fakeProvider) SubmitTx(
	_ context.Context,
	_ []byte,
) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return strings.Repeat("cd", 32), nil
}

func (f *fakeProvider) AwaitConfirmation(
	_ context.Context,
	_ string,
) error {
	return nil
}

func testPolicy(t *testing.T) *blueprint.ScriptReference {
	t.Helper()
	store := blueprint.New(blueprint.Blueprint{
		Validators: []blueprint.Validator{
			{
				Title:        blueprint.TitleClassroomNftMint,
				CompiledCode: "59030405",
			},
		},
	})
	ref, err := store.Resolve(blueprint.TitleClassroomNftMint)
	require.NoError(t, err)
	return ref
}

func teacherAddress(t *testing.T) (string, []byte) {
	t.Helper()
	keyHash := bytes.Repeat([]byte{0x11}, 28)
	addr, err := lcommon.NewAddressFromParts(
		lcommon.AddressTypeKeyNone,
		lcommon.AddressNetworkTestnet,
		keyHash,
		nil,
	)
	require.NoError(t, err)
	return addr.String(), keyHash
}

func fundedUtxo(txIDByte byte, lovelace uint64) chain.Utxo {
	const digits = "0123456789abcdef"
	pair := string([]byte{
		digits[txIDByte>>4], digits[txIDByte&0x0f],
	})
	return chain.Utxo{
		Ref: chain.OutRef{
			TxID:  strings.Repeat(pair, 32),
			Index: 0,
		},
		Value: chain.Value{chain.LovelaceUnit: lovelace},
	}
}

func TestValidateClassroomID(t *testing.T) {
	testCases := []struct {
		id        string
		expectErr bool
	}{
		{id: "MATH101"},
		{id: "a"},
		{id: strings.Repeat("x", 32)},
		{id: "class_1"},
		{id: "", expectErr: true},
		{id: strings.Repeat("x", 33), expectErr: true},
		{id: "math-101", expectErr: true},
		{id: "math 101", expectErr: true},
	}
	for _, tc := range testCases {
		err := ValidateClassroomID(tc.id)
		if tc.expectErr {
			assert.ErrorIs(t, err, ErrInvalidClassroomID, tc.id)
		} else {
			assert.NoError(t, err, tc.id)
		}
	}
}

func TestGenerateClassroomID(t *testing.T) {
	seen := map[string]struct{}{}
	for range 10 {
		id := GenerateClassroomID()
		require.NoError(t, ValidateClassroomID(id))
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestUnitDeterminism(t *testing.T) {
	policyID := strings.Repeat("ab", 28)
	unit1 := Unit(policyID, AssetName("MATH101"))
	unit2 := Unit(policyID, AssetName("MATH101"))
	assert.Equal(t, unit1, unit2)
	assert.Equal(
		t,
		policyID+hex.EncodeToString([]byte("CLASSROOM_MATH101")),
		unit1,
	)
}

func TestMintRedeemerShape(t *testing.T) {
	_, teacherHash := teacherAddress(t)
	oneTime := fundedUtxo(0xaa, 5_000_000)

	encoded, err := MintRedeemer(teacherHash, "MATH101", oneTime.Ref)
	require.NoError(t, err)

	pd, err := plutus.Decode(encoded)
	require.NoError(t, err)
	outer, err := plutus.Unwrap(pd, plutus.MintTagMint, 1)
	require.NoError(t, err)
	inner, err := outer.Nested(0, 3)
	require.NoError(t, err)

	gotHash, err := inner.Bytes()
	require.NoError(t, err)
	assert.Equal(t, teacherHash, gotHash)
	gotID, err := inner.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("MATH101"), gotID)

	ref, err := inner.Nested(0, 2)
	require.NoError(t, err)
	txHashWrap, err := ref.Nested(0, 1)
	require.NoError(t, err)
	gotTxHash, err := txHashWrap.Bytes()
	require.NoError(t, err)
	assert.Equal(t, oneTime.Ref.TxID, hex.EncodeToString(gotTxHash))
	gotIdx, err := ref.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(0), gotIdx)
}

func TestMint(t *testing.T) {
	teacherAddr, _ := teacherAddress(t)
	// The pure 2 ADA utxo is the deterministic one-time pick
	oneTime := fundedUtxo(0xaa, 3_000_000)
	mixed := fundedUtxo(0xbb, 5_000_000)
	mixed.Value["deadbeef00"] = 1

	w := &fakeWallet{
		address: teacherAddr,
		utxos:   []chain.Utxo{mixed, oneTime},
	}
	issuer, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   w,
		Policy:   testPolicy(t),
	})
	require.NoError(t, err)

	result, err := issuer.Mint(context.Background(), MintParams{
		TeacherAddress: teacherAddr,
		ClassroomID:    "MATH101",
	})
	require.NoError(t, err)
	assert.Equal(t, "CLASSROOM_MATH101", result.AssetName)
	assert.Equal(t, issuer.PolicyID(), result.PolicyID)
	assert.Equal(
		t,
		Unit(issuer.PolicyID(), "CLASSROOM_MATH101"),
		result.Unit,
	)

	require.NotNil(t, w.signed)
	require.Len(t, w.signed.Mints, 1)
	assert.Equal(
		t,
		map[string]int64{
			hex.EncodeToString([]byte("CLASSROOM_MATH101")): 1,
		},
		w.signed.Mints[0].Assets,
	)
	// The one-time utxo reference is embedded in the redeemer
	pd, err := plutus.Decode(w.signed.Mints[0].Redeemer)
	require.NoError(t, err)
	outer, err := plutus.Unwrap(pd, plutus.MintTagMint, 1)
	require.NoError(t, err)
	inner, err := outer.Nested(0, 3)
	require.NoError(t, err)
	_, err = inner.Bytes()
	require.NoError(t, err)
	_, err = inner.Bytes()
	require.NoError(t, err)
	ref, err := inner.Nested(0, 2)
	require.NoError(t, err)
	txHashWrap, err := ref.Nested(0, 1)
	require.NoError(t, err)
	gotTxHash, err := txHashWrap.Bytes()
	require.NoError(t, err)
	assert.Equal(t, oneTime.Ref.TxID, hex.EncodeToString(gotTxHash))
}

func TestMintInvalidClassroomID(t *testing.T) {
	issuer, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   &fakeWallet{},
		Policy:   testPolicy(t),
	})
	require.NoError(t, err)

	teacherAddr, _ := teacherAddress(t)
	_, err = issuer.Mint(context.Background(), MintParams{
		TeacherAddress: teacherAddr,
		ClassroomID:    "math 101",
	})
	assert.ErrorIs(t, err, ErrInvalidClassroomID)
}

func TestMintNoEligibleUtxo(t *testing.T) {
	teacherAddr, _ := teacherAddress(t)
	w := &fakeWallet{
		address: teacherAddr,
		utxos:   []chain.Utxo{fundedUtxo(0xaa, 1_000_000)},
	}
	issuer, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   w,
		Policy:   testPolicy(t),
	})
	require.NoError(t, err)

	_, err = issuer.Mint(context.Background(), MintParams{
		TeacherAddress: teacherAddr,
		ClassroomID:    "MATH101",
	})
	assert.ErrorIs(t, err, chain.ErrNoEligibleUtxo)
}

func TestBurn(t *testing.T) {
	teacherAddr, _ := teacherAddress(t)
	issuer, err := New(Config{
		Provider: &fakeProvider{},
		Wallet: &fakeWallet{
			address: teacherAddr,
			utxos:   []chain.Utxo{fundedUtxo(0xaa, 5_000_000)},
		},
		Policy: testPolicy(t),
	})
	require.NoError(t, err)

	unit := Unit(issuer.PolicyID(), "CLASSROOM_MATH101")
	nftUtxo := fundedUtxo(0xcc, 2_000_000)
	nftUtxo.Value[unit] = 1

	txID, err := issuer.Burn(context.Background(), BurnParams{
		OwnerAddress: teacherAddr,
		NftUtxo:      nftUtxo,
		AssetName:    "CLASSROOM_MATH101",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
}

func TestBurnAssetNotFound(t *testing.T) {
	teacherAddr, _ := teacherAddress(t)
	issuer, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   &fakeWallet{},
		Policy:   testPolicy(t),
	})
	require.NoError(t, err)

	_, err = issuer.Burn(context.Background(), BurnParams{
		OwnerAddress: teacherAddr,
		NftUtxo:      fundedUtxo(0xcc, 2_000_000),
		AssetName:    "CLASSROOM_MATH101",
	})
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestOwnedNFTs(t *testing.T) {
	teacherAddr, _ := teacherAddress(t)
	policy := testPolicy(t)

	nftUtxo := fundedUtxo(0xcc, 2_000_000)
	nftUtxo.Value[Unit(policy.PolicyID(), "CLASSROOM_MATH101")] = 1
	otherUtxo := fundedUtxo(0xdd, 2_000_000)
	otherUtxo.Value["deadbeef00"] = 1

	issuer, err := New(Config{
		Provider: &fakeProvider{
			utxosByAddress: map[string][]chain.Utxo{
				teacherAddr: {nftUtxo, otherUtxo},
			},
		},
		Wallet: &fakeWallet{},
		Policy: policy,
	})
	require.NoError(t, err)

	owned, err := issuer.OwnedNFTs(context.Background(), teacherAddr)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "CLASSROOM_MATH101", owned[0].AssetName)

	has, err := issuer.HasNFT(
		context.Background(), teacherAddr, "CLASSROOM_MATH101",
	)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = issuer.HasNFT(
		context.Background(), teacherAddr, "CLASSROOM_BIO201",
	)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMintCompletion(t *testing.T) {
	senderAddr, senderHash := teacherAddress(t)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	proof := &CompletionProof{
		SenderKeyHash:        senderHash,
		ResourceID:           []byte("course-42"),
		CompletionPercentage: 100,
		Timestamp:            1_700_000_000_000,
		Nonce:                []byte{0x09},
	}
	proof.Signature = ed25519.Sign(priv, proof.message())

	w := &fakeWallet{
		address: senderAddr,
		utxos:   []chain.Utxo{fundedUtxo(0xaa, 10_000_000)},
	}
	issuer, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   w,
		Policy:   testPolicy(t),
	})
	require.NoError(t, err)

	result, err := issuer.MintCompletion(
		context.Background(),
		MintCompletionParams{
			SenderAddress: senderAddr,
			Proof:         proof,
			OraclePubKey:  pub,
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETION_course-42", result.AssetName)

	partial := *proof
	partial.CompletionPercentage = 80
	partial.Signature = ed25519.Sign(priv, partial.message())
	_, err = issuer.MintCompletion(
		context.Background(),
		MintCompletionParams{
			SenderAddress: senderAddr,
			Proof:         &partial,
			OraclePubKey:  pub,
		},
	)
	assert.ErrorIs(t, err, ErrInvalidCompletionProof)
}
