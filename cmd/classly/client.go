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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/classly"
	"github.com/blinklabs-io/classly/blockfrost"
	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/internal/config"
	"github.com/blinklabs-io/classly/tx"
	"github.com/spf13/cobra"
)

// readOnlyWallet satisfies the wallet interface for query commands.
// Signing requires an external wallet and is not available from the
// CLI.
type readOnlyWallet struct {
	address  string
	provider chain.Provider
}

func (w *readOnlyWallet) Address(_ context.Context) (string, error) {
	if w.address == "" {
		return "", errors.New("no wallet address configured")
	}
	return w.address, nil
}

func (w *readOnlyWallet) Utxos(ctx context.Context) ([]chain.Utxo, error) {
	if w.address == "" {
		return nil, errors.New("no wallet address configured")
	}
	return w.provider.UtxosAt(ctx, w.address)
}

func (w *readOnlyWallet) SignTx(
	_ context.Context,
	_ *tx.Draft,
) ([]byte, error) {
	return nil, errors.New(
		"signing is not available from the command line: use an external wallet",
	)
}

func newClient(cmd *cobra.Command) (*classly.Client, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errors.New("no config found in context")
	}
	logger := commonRun()

	projectID, err := cfg.ResolveProjectID()
	if err != nil {
		return nil, err
	}
	baseURL := cfg.ProviderURL
	if baseURL == "" {
		baseURL, err = blockfrost.BaseURLForNetwork(cfg.Network)
		if err != nil {
			return nil, err
		}
	}
	provider := blockfrost.NewClient(baseURL, projectID)

	store, err := blueprint.NewFromFile(cfg.BlueprintPath)
	if err != nil {
		return nil, fmt.Errorf("loading validator blueprint: %w", err)
	}

	return classly.New(classly.NewConfig(
		classly.WithLogger(logger),
		classly.WithNetwork(cfg.Network),
		classly.WithProvider(provider),
		classly.WithWallet(&readOnlyWallet{provider: provider}),
		classly.WithBlueprints(store),
		classly.WithTracing(cfg.Tracing),
		classly.WithTracingStdout(cfg.TracingStdout),
	))
}

func healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check chain provider connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("provider is healthy")
			return nil
		},
	}
}

func contractsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contracts",
		Short: "Display deployed contract locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			contracts, err := client.Contracts()
			if err != nil {
				return err
			}
			fmt.Printf("escrow address:     %s\n", contracts.EscrowAddress.String())
			fmt.Printf("nft policy id:      %s\n", contracts.NftPolicyID)
			fmt.Printf("reputation address: %s\n", contracts.ReputationAddress.String())
			return nil
		},
	}
}
