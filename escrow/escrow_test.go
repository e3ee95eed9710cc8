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

package escrow

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
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
	submitted      [][]byte
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
	txCbor []byte,
) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, txCbor)
	return "ff00" + strings.Repeat("ab", 30), nil
}

func (f *fakeProvider) AwaitConfirmation(
	_ context.Context,
	_ string,
) error {
	return nil
}

func testScript(t *testing.T) *blueprint.ScriptReference {
	t.Helper()
	store := blueprint.New(blueprint.Blueprint{
		Validators: []blueprint.Validator{
			{
				Title:        blueprint.TitleEscrowSpend,
				CompiledCode: "59010203",
			},
		},
	})
	ref, err := store.Resolve(blueprint.TitleEscrowSpend)
	require.NoError(t, err)
	return ref
}

func partyAddress(t *testing.T, fill byte) (string, []byte) {
	t.Helper()
	keyHash := bytes.Repeat([]byte{fill}, 28)
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

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestDatumRoundTrip(t *testing.T) {
	_, studentHash := partyAddress(t, 0x01)
	_, teacherHash := partyAddress(t, 0x02)
	datum := Datum{
		StudentKeyHash: studentHash,
		TeacherKeyHash: teacherHash,
		LockedAmount:   10_000_000,
		NftPolicyID:    bytes.Repeat([]byte{0xab}, 28),
		NftAssetName:   []byte("CLASSROOM_MATH101"),
		RefundDeadline: 1_700_000_000_000,
	}
	encoded, err := datum.MarshalPlutus()
	require.NoError(t, err)

	var decoded Datum
	require.NoError(t, decoded.UnmarshalPlutus(encoded))
	assert.Equal(t, datum, decoded)
}

func TestLockAndQuery(t *testing.T) {
	studentAddr, studentHash := partyAddress(t, 0x01)
	teacherAddr, teacherHash := partyAddress(t, 0x02)
	w := &fakeWallet{
		address: studentAddr,
		utxos:   []chain.Utxo{fundedUtxo(0xaa, 20_000_000)},
	}
	provider := &fakeProvider{
		utxosByAddress: map[string][]chain.Utxo{},
	}
	svc, err := New(Config{
		Provider: provider,
		Wallet:   w,
		Script:   testScript(t),
	})
	require.NoError(t, err)

	deadline := time.Now().Add(7 * 24 * time.Hour)
	txID, err := svc.Lock(context.Background(), LockParams{
		StudentAddress: studentAddr,
		TeacherAddress: teacherAddr,
		Amount:         10_000_000,
		NftPolicyID:    strings.Repeat("ab", 28),
		NftAssetName:   "CLASSROOM_MATH101",
		RefundDeadline: deadline,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	require.Len(t, provider.submitted, 1)

	// The draft pays the script with the inline datum attached
	require.NotNil(t, w.signed)
	require.Len(t, w.signed.Outputs, 2)
	scriptOut := w.signed.Outputs[0]
	assert.Equal(t, svc.ScriptAddress(), scriptOut.Address)
	assert.Equal(t, uint64(10_000_000), scriptOut.Value.Lovelace())

	var datum Datum
	require.NoError(t, datum.UnmarshalPlutus(scriptOut.InlineDatum))
	assert.Equal(t, studentHash, datum.StudentKeyHash)
	assert.Equal(t, teacherHash, datum.TeacherKeyHash)
	assert.Equal(t, deadline.UnixMilli(), datum.RefundDeadline)

	// The locked output round-trips through Find
	provider.utxosByAddress[svc.ScriptAddress()] = []chain.Utxo{
		{
			Ref:         chain.OutRef{TxID: txID, Index: 0},
			Address:     svc.ScriptAddress(),
			Value:       scriptOut.Value,
			InlineDatum: scriptOut.InlineDatum,
		},
	}
	_, found, err := svc.Find(
		context.Background(), studentAddr, teacherAddr,
	)
	require.NoError(t, err)
	assert.Equal(t, datum, found)
}

func TestLockInvalidParty(t *testing.T) {
	svc, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   &fakeWallet{},
		Script:   testScript(t),
	})
	require.NoError(t, err)

	teacherAddr, _ := partyAddress(t, 0x02)
	_, err = svc.Lock(context.Background(), LockParams{
		StudentAddress: "garbage",
		TeacherAddress: teacherAddr,
		Amount:         10_000_000,
	})
	assert.ErrorIs(t, err, ErrInvalidParty)
}

func escrowUtxo(t *testing.T, svc *Escrow, datum Datum) chain.Utxo {
	t.Helper()
	datumBytes, err := datum.MarshalPlutus()
	require.NoError(t, err)
	utxo := fundedUtxo(0xee, uint64(datum.LockedAmount))
	utxo.Address = svc.ScriptAddress()
	utxo.InlineDatum = datumBytes
	return utxo
}

func TestRelease(t *testing.T) {
	_, studentHash := partyAddress(t, 0x01)
	teacherAddr, teacherHash := partyAddress(t, 0x02)
	policy := bytes.Repeat([]byte{0xab}, 28)
	assetName := []byte("CLASSROOM_MATH101")

	w := &fakeWallet{
		address: teacherAddr,
		utxos:   []chain.Utxo{fundedUtxo(0xaa, 5_000_000)},
	}
	provider := &fakeProvider{}
	svc, err := New(Config{
		Provider: provider,
		Wallet:   w,
		Script:   testScript(t),
	})
	require.NoError(t, err)

	datum := Datum{
		StudentKeyHash: studentHash,
		TeacherKeyHash: teacherHash,
		LockedAmount:   10_000_000,
		NftPolicyID:    policy,
		NftAssetName:   assetName,
		RefundDeadline: time.Now().Add(24 * time.Hour).UnixMilli(),
	}
	nftUnit := hex.EncodeToString(policy) +
		hex.EncodeToString(assetName)
	nftUtxo := fundedUtxo(0xcc, 2_000_000)
	nftUtxo.Value[nftUnit] = 1

	txID, err := svc.Release(context.Background(), ReleaseParams{
		TeacherAddress: teacherAddr,
		EscrowUtxo:     escrowUtxo(t, svc, datum),
		NftProofUtxo:   nftUtxo,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	require.NotNil(t, w.signed)
	require.Len(t, w.signed.ScriptInputs, 1)
	require.Len(t, w.signed.ReferenceInputs, 1)
	assert.Equal(
		t, nftUtxo.Ref, w.signed.ReferenceInputs[0].Ref,
	)
	assert.Equal(t, [][]byte{teacherHash}, w.signed.RequiredSigners)
	assert.Equal(
		t,
		uint64(10_000_000),
		w.signed.Outputs[0].Value.Lovelace(),
	)
}

func TestReleaseWrongTeacher(t *testing.T) {
	_, studentHash := partyAddress(t, 0x01)
	_, teacherHash := partyAddress(t, 0x02)
	otherAddr, _ := partyAddress(t, 0x03)

	svc, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   &fakeWallet{},
		Script:   testScript(t),
	})
	require.NoError(t, err)

	datum := Datum{
		StudentKeyHash: studentHash,
		TeacherKeyHash: teacherHash,
		LockedAmount:   10_000_000,
		NftPolicyID:    bytes.Repeat([]byte{0xab}, 28),
		NftAssetName:   []byte("CLASSROOM_MATH101"),
	}
	_, err = svc.Release(context.Background(), ReleaseParams{
		TeacherAddress: otherAddr,
		EscrowUtxo:     escrowUtxo(t, svc, datum),
		NftProofUtxo:   fundedUtxo(0xcc, 2_000_000),
	})
	assert.ErrorIs(t, err, ErrInvalidParty)
}

func TestReleaseMissingNftProof(t *testing.T) {
	_, studentHash := partyAddress(t, 0x01)
	teacherAddr, teacherHash := partyAddress(t, 0x02)

	svc, err := New(Config{
		Provider: &fakeProvider{},
		Wallet:   &fakeWallet{},
		Script:   testScript(t),
	})
	require.NoError(t, err)

	datum := Datum{
		StudentKeyHash: studentHash,
		TeacherKeyHash: teacherHash,
		LockedAmount:   10_000_000,
		NftPolicyID:    bytes.Repeat([]byte{0xab}, 28),
		NftAssetName:   []byte("CLASSROOM_MATH101"),
	}
	_, err = svc.Release(context.Background(), ReleaseParams{
		TeacherAddress: teacherAddr,
		EscrowUtxo:     escrowUtxo(t, svc, datum),
		NftProofUtxo:   fundedUtxo(0xcc, 2_000_000),
	})
	assert.ErrorIs(t, err, ErrMissingProof)
}

func TestRefundDeadlineGating(t *testing.T) {
	studentAddr, studentHash := partyAddress(t, 0x01)
	_, teacherHash := partyAddress(t, 0x02)
	deadline := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	newSvc := func(now time.Time) (*Escrow, *fakeWallet) {
		w := &fakeWallet{
			address: studentAddr,
			utxos:   []chain.Utxo{fundedUtxo(0xaa, 5_000_000)},
		}
		svc, err := New(Config{
			Provider: &fakeProvider{},
			Wallet:   w,
			Script:   testScript(t),
			Now:      fixedNow(now),
		})
		require.NoError(t, err)
		return svc, w
	}
	datum := Datum{
		StudentKeyHash: studentHash,
		TeacherKeyHash: teacherHash,
		LockedAmount:   10_000_000,
		NftPolicyID:    bytes.Repeat([]byte{0xab}, 28),
		NftAssetName:   []byte("CLASSROOM_MATH101"),
		RefundDeadline: deadline.UnixMilli(),
	}

	// Strictly before the deadline the refund is rejected locally
	svc, _ := newSvc(deadline.Add(-time.Millisecond))
	_, err := svc.Refund(context.Background(), RefundParams{
		StudentAddress: studentAddr,
		EscrowUtxo:     escrowUtxo(t, svc, datum),
	})
	assert.ErrorIs(t, err, ErrDeadlineNotReached)

	// At the deadline it succeeds with the validity bound set
	svc, w := newSvc(deadline)
	_, err = svc.Refund(context.Background(), RefundParams{
		StudentAddress: studentAddr,
		EscrowUtxo:     escrowUtxo(t, svc, datum),
	})
	require.NoError(t, err)
	require.NotNil(t, w.signed)
	assert.Equal(t, uint64(deadline.UnixMilli()), w.signed.ValidFrom)
	assert.Equal(t, [][]byte{studentHash}, w.signed.RequiredSigners)
}

func TestRecordsSkipsMalformed(t *testing.T) {
	_, studentHash := partyAddress(t, 0x01)
	_, teacherHash := partyAddress(t, 0x02)
	datum := Datum{
		StudentKeyHash: studentHash,
		TeacherKeyHash: teacherHash,
		LockedAmount:   10_000_000,
		NftPolicyID:    bytes.Repeat([]byte{0xab}, 28),
		NftAssetName:   []byte("CLASSROOM_MATH101"),
	}
	datumBytes, err := datum.MarshalPlutus()
	require.NoError(t, err)

	good := fundedUtxo(0xaa, 10_000_000)
	good.InlineDatum = datumBytes
	noDatum := fundedUtxo(0xbb, 1_000_000)
	garbage := fundedUtxo(0xcc, 1_000_000)
	garbage.InlineDatum = []byte{0xff, 0x00, 0x13}

	var count int
	for _, decoded := range Records(
		[]chain.Utxo{noDatum, garbage, good},
	) {
		count++
		assert.Equal(t, datum, decoded)
	}
	assert.Equal(t, 1, count)
}

func TestDatumDetails(t *testing.T) {
	datum := Datum{
		StudentKeyHash: bytes.Repeat([]byte{0x01}, 28),
		TeacherKeyHash: bytes.Repeat([]byte{0x02}, 28),
		LockedAmount:   10_000_000,
		NftPolicyID:    bytes.Repeat([]byte{0xab}, 28),
		NftAssetName:   []byte("CLASSROOM_MATH101"),
		RefundDeadline: 1_700_000_000_000,
	}
	details := DatumDetails(datum)
	assert.Equal(t, "CLASSROOM_MATH101", details.NftAssetName)
	assert.Equal(t, strings.Repeat("ab", 28), details.NftPolicyID)
	assert.Equal(
		t,
		time.UnixMilli(1_700_000_000_000).UTC(),
		details.RefundDeadline,
	)
}
