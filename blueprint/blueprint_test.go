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

package blueprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlueprint() Blueprint {
	return Blueprint{
		Validators: []Validator{
			{
				Title:        TitleEscrowSpend,
				CompiledCode: "59010203",
			},
			{
				Title:        TitleClassroomNftMint,
				CompiledCode: "590a0b0c",
			},
			{
				Title:        TitleReputationSpend,
				CompiledCode: "59fafbfc",
			},
		},
	}
}

func TestResolve(t *testing.T) {
	store := New(testBlueprint())

	ref, err := store.Resolve(TitleEscrowSpend)
	require.NoError(t, err)
	assert.Equal(t, TitleEscrowSpend, ref.Title)
	assert.Equal(t, []byte{0x59, 0x01, 0x02, 0x03}, ref.Script)
	assert.Equal(t, byte(PlutusV2), ref.PlutusTag)
	assert.Len(t, ref.PolicyID(), 56)
}

func TestResolveMemoizes(t *testing.T) {
	store := New(testBlueprint())

	first, err := store.Resolve(TitleEscrowSpend)
	require.NoError(t, err)
	second, err := store.Resolve(TitleEscrowSpend)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestResolveUnknownTitle(t *testing.T) {
	store := New(testBlueprint())

	_, err := store.Resolve("escrow.unknown.withdraw")
	assert.ErrorIs(t, err, ErrScriptNotFound)
}

func TestResolveBlueprintHashWins(t *testing.T) {
	hash := strings.Repeat("1f", 28)
	store := New(Blueprint{
		Validators: []Validator{
			{
				Title:        TitleEscrowSpend,
				CompiledCode: "59010203",
				Hash:         hash,
			},
		},
	})
	ref, err := store.Resolve(TitleEscrowSpend)
	require.NoError(t, err)
	assert.Equal(t, hash, ref.PolicyID())
}

func TestPlutusVersionChangesHash(t *testing.T) {
	v2 := New(testBlueprint())
	v3 := New(testBlueprint(), WithPlutusVersion(PlutusV3))

	refV2, err := v2.Resolve(TitleEscrowSpend)
	require.NoError(t, err)
	refV3, err := v3.Resolve(TitleEscrowSpend)
	require.NoError(t, err)
	assert.NotEqual(t, refV2.PolicyID(), refV3.PolicyID())
}

func TestAddressNetworks(t *testing.T) {
	store := New(testBlueprint())
	ref, err := store.Resolve(TitleEscrowSpend)
	require.NoError(t, err)

	testnetAddr, err := ref.Address(lcommon.AddressNetworkTestnet)
	require.NoError(t, err)
	mainnetAddr, err := ref.Address(lcommon.AddressNetworkMainnet)
	require.NoError(t, err)
	assert.NotEqual(t, testnetAddr.String(), mainnetAddr.String())
	assert.True(
		t,
		strings.HasPrefix(testnetAddr.String(), "addr_test1"),
		"testnet address: %s",
		testnetAddr.String(),
	)
	assert.True(
		t,
		strings.HasPrefix(mainnetAddr.String(), "addr1"),
		"mainnet address: %s",
		mainnetAddr.String(),
	)
}

func TestNewFromFile(t *testing.T) {
	content := `{
  "validators": [
    {
      "title": "escrow.escrow_validator.spend",
      "compiledCode": "59010203"
    }
  ]
}`
	tmpFile := filepath.Join(t.TempDir(), "plutus.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	store, err := NewFromFile(tmpFile)
	require.NoError(t, err)
	ref, err := store.Resolve(TitleEscrowSpend)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x59, 0x01, 0x02, 0x03}, ref.Script)
}

func TestNewFromFileMissing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestContracts(t *testing.T) {
	store := New(testBlueprint())

	contracts, err := store.Contracts(lcommon.AddressNetworkTestnet)
	require.NoError(t, err)
	assert.NotEmpty(t, contracts.EscrowAddress.String())
	assert.Len(t, contracts.NftPolicyID, 56)
	assert.NotEmpty(t, contracts.ReputationAddress.String())
}
