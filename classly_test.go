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

package classly

import (
	"context"
	"testing"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/event"
	"github.com/blinklabs-io/classly/tx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	address string
	utxos   []chain.Utxo
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
	return draft.BodyCbor(), nil
}

type fakeProvider struct {
	healthErr error
	utxoCalls int
}

func (f *fakeProvider) Health(_ context.Context) error {
	return f.healthErr
}

func (f *fakeProvider) UtxosAt(
	_ context.Context,
	_ string,
) ([]chain.Utxo, error) {
	f.utxoCalls++
	return nil, nil
}

func (f *fakeProvider) SubmitTx(
	_ context.Context,
	_ []byte,
) (string, error) {
	return "00", nil
}

func (f *fakeProvider) AwaitConfirmation(
	_ context.Context,
	_ string,
) error {
	return nil
}

func testBlueprints() *blueprint.Store {
	titles := []string{
		blueprint.TitleEscrowSpend,
		blueprint.TitleMilestoneSpend,
		blueprint.TitleClassroomNftMint,
		blueprint.TitleCompletionNftMint,
		blueprint.TitleReputationSpend,
	}
	var validators []blueprint.Validator
	for _, title := range titles {
		validators = append(validators, blueprint.Validator{
			Title:        title,
			CompiledCode: "59010203",
		})
	}
	return blueprint.New(blueprint.Blueprint{Validators: validators})
}

func TestNewRequiresWiring(t *testing.T) {
	_, err := New(NewConfig())
	assert.ErrorContains(t, err, "no chain provider")

	_, err = New(NewConfig(
		WithProvider(&fakeProvider{}),
	))
	assert.ErrorContains(t, err, "no wallet")

	_, err = New(NewConfig(
		WithProvider(&fakeProvider{}),
		WithWallet(&fakeWallet{}),
	))
	assert.ErrorContains(t, err, "no validator blueprints")
}

func TestNewRejectsUnknownNetwork(t *testing.T) {
	_, err := New(NewConfig(
		WithNetwork("sandbox"),
		WithProvider(&fakeProvider{}),
		WithWallet(&fakeWallet{}),
		WithBlueprints(testBlueprints()),
	))
	assert.ErrorContains(t, err, "unknown network")
}

func TestClientServices(t *testing.T) {
	client, err := New(NewConfig(
		WithProvider(&fakeProvider{}),
		WithWallet(&fakeWallet{}),
		WithBlueprints(testBlueprints()),
	))
	require.NoError(t, err)
	assert.Equal(t, NetworkPreview, client.Network())

	escrowSvc, err := client.Escrow()
	require.NoError(t, err)
	assert.NotNil(t, escrowSvc)
	again, err := client.Escrow()
	require.NoError(t, err)
	assert.Same(t, escrowSvc, again)

	milestoneSvc, err := client.Milestone()
	require.NoError(t, err)
	assert.NotNil(t, milestoneSvc)

	nftSvc, err := client.Nft()
	require.NoError(t, err)
	completionSvc, err := client.CompletionNft()
	require.NoError(t, err)
	assert.NotEqual(t, nftSvc.PolicyID(), "")
	assert.NotNil(t, completionSvc)

	repSvc, err := client.Reputation()
	require.NoError(t, err)
	assert.NotNil(t, repSvc)

	contracts, err := client.Contracts()
	require.NoError(t, err)
	assert.NotEmpty(t, contracts.NftPolicyID)
}

func TestClientMissingValidator(t *testing.T) {
	store := blueprint.New(blueprint.Blueprint{
		Validators: []blueprint.Validator{
			{
				Title:        blueprint.TitleEscrowSpend,
				CompiledCode: "59010203",
			},
		},
	})
	client, err := New(NewConfig(
		WithProvider(&fakeProvider{}),
		WithWallet(&fakeWallet{}),
		WithBlueprints(store),
	))
	require.NoError(t, err)

	_, err = client.Escrow()
	require.NoError(t, err)
	_, err = client.Reputation()
	assert.ErrorIs(t, err, blueprint.ErrScriptNotFound)
}

func TestTransactionEvents(t *testing.T) {
	client, err := New(NewConfig(
		WithProvider(&fakeProvider{}),
		WithWallet(&fakeWallet{}),
		WithBlueprints(testBlueprints()),
	))
	require.NoError(t, err)
	defer client.Close(context.Background())

	_, ch := client.EventBus().Subscribe(
		event.TransactionSubmittedEventType,
	)
	txID, err := client.Provider().SubmitTx(context.Background(), nil)
	require.NoError(t, err)

	evt := <-ch
	data, ok := evt.Data.(event.TransactionSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, txID, data.TxID)
}

func TestMeasuredProvider(t *testing.T) {
	registry := prometheus.NewRegistry()
	provider := &fakeProvider{}
	client, err := New(NewConfig(
		WithProvider(provider),
		WithWallet(&fakeWallet{}),
		WithBlueprints(testBlueprints()),
		WithPrometheusRegistry(registry),
	))
	require.NoError(t, err)

	require.NoError(t, client.Health(context.Background()))
	_, err = client.Provider().UtxosAt(context.Background(), "addr")
	require.NoError(t, err)
	_, err = client.Provider().SubmitTx(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.utxoCalls)
	count := testutil.CollectAndCount(
		registry,
		"classly_provider_requests_total",
	)
	assert.Equal(t, 3, count)
	count = testutil.CollectAndCount(
		registry,
		"classly_tx_submissions_total",
	)
	assert.Equal(t, 1, count)
}
