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

// Package classly is the off-chain transaction layer for the Classly
// learning marketplace. It assembles escrow, NFT, and reputation
// services over a chain provider and a signing wallet.
package classly

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/escrow"
	"github.com/blinklabs-io/classly/event"
	"github.com/blinklabs-io/classly/nft"
	"github.com/blinklabs-io/classly/reputation"
	"go.opentelemetry.io/otel"
)

// Client bundles the Classly services behind one configuration.
// Services are constructed on first use, so a blueprint that omits
// some validators still serves the rest.
type Client struct {
	config        Config
	provider      chain.Provider
	eventBus      *event.EventBus
	metrics       *metrics
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once

	mu         sync.Mutex
	escrow     *escrow.Escrow
	milestone  *escrow.Milestone
	nft        *nft.Issuer
	completion *nft.Issuer
	reputation *reputation.Aggregator
}

// New creates a Client from the given config
func New(cfg Config) (*Client, error) {
	c := &Client{
		config:   cfg,
		provider: cfg.provider,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
	}
	if err := c.config.configPopulateNetworkID(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.config.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.promRegistry != nil {
		c.metrics = newMetrics(cfg.promRegistry)
		c.provider = &measuredProvider{
			next:    c.provider,
			metrics: c.metrics,
		}
	}
	c.provider = &eventedProvider{
		next: c.provider,
		bus:  c.eventBus,
	}
	if cfg.tracing {
		if err := c.setupTracing(); err != nil {
			return nil, err
		}
		c.provider = &tracedProvider{
			next:   c.provider,
			tracer: otel.Tracer("classly"),
		}
	}
	return c, nil
}

// Network returns the configured network name
func (c *Client) Network() string {
	return c.config.network
}

// Provider returns the chain provider, wrapped with metrics when a
// registry was configured
func (c *Client) Provider() chain.Provider {
	return c.provider
}

// EventBus returns the transaction lifecycle event bus
func (c *Client) EventBus() *event.EventBus {
	return c.eventBus
}

// Health checks connectivity to the chain provider
func (c *Client) Health(ctx context.Context) error {
	return c.provider.Health(ctx)
}

// Contracts resolves the deployed contract locations for the
// configured network
func (c *Client) Contracts() (*blueprint.ContractSet, error) {
	return c.config.blueprints.Contracts(c.config.networkID)
}

// Escrow returns the two-party escrow service
func (c *Client) Escrow() (*escrow.Escrow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.escrow != nil {
		return c.escrow, nil
	}
	script, err := c.config.blueprints.Resolve(blueprint.TitleEscrowSpend)
	if err != nil {
		return nil, err
	}
	svc, err := escrow.New(escrow.Config{
		Logger:    c.config.logger,
		Provider:  c.provider,
		Wallet:    c.config.wallet,
		Script:    script,
		NetworkID: c.config.networkID,
		Now:       c.config.now,
	})
	if err != nil {
		return nil, err
	}
	c.escrow = svc
	return svc, nil
}

// Milestone returns the milestone escrow service
func (c *Client) Milestone() (*escrow.Milestone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.milestone != nil {
		return c.milestone, nil
	}
	script, err := c.config.blueprints.Resolve(
		blueprint.TitleMilestoneSpend,
	)
	if err != nil {
		return nil, err
	}
	svc, err := escrow.NewMilestone(escrow.Config{
		Logger:    c.config.logger,
		Provider:  c.provider,
		Wallet:    c.config.wallet,
		Script:    script,
		NetworkID: c.config.networkID,
		Now:       c.config.now,
	})
	if err != nil {
		return nil, err
	}
	c.milestone = svc
	return svc, nil
}

// Nft returns the classroom NFT issuer
func (c *Client) Nft() (*nft.Issuer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nft != nil {
		return c.nft, nil
	}
	policy, err := c.config.blueprints.Resolve(
		blueprint.TitleClassroomNftMint,
	)
	if err != nil {
		return nil, err
	}
	issuer, err := nft.New(nft.Config{
		Logger:   c.config.logger,
		Provider: c.provider,
		Wallet:   c.config.wallet,
		Policy:   policy,
	})
	if err != nil {
		return nil, err
	}
	c.nft = issuer
	return issuer, nil
}

// CompletionNft returns the course completion NFT issuer
func (c *Client) CompletionNft() (*nft.Issuer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completion != nil {
		return c.completion, nil
	}
	policy, err := c.config.blueprints.Resolve(
		blueprint.TitleCompletionNftMint,
	)
	if err != nil {
		return nil, err
	}
	issuer, err := nft.New(nft.Config{
		Logger:   c.config.logger,
		Provider: c.provider,
		Wallet:   c.config.wallet,
		Policy:   policy,
	})
	if err != nil {
		return nil, err
	}
	c.completion = issuer
	return issuer, nil
}

// Reputation returns the reputation aggregator
func (c *Client) Reputation() (*reputation.Aggregator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reputation != nil {
		return c.reputation, nil
	}
	script, err := c.config.blueprints.Resolve(
		blueprint.TitleReputationSpend,
	)
	if err != nil {
		return nil, err
	}
	svc, err := reputation.New(reputation.Config{
		Logger:    c.config.logger,
		Provider:  c.provider,
		Wallet:    c.config.wallet,
		Script:    script,
		NetworkID: c.config.networkID,
		Now:       c.config.now,
	})
	if err != nil {
		return nil, err
	}
	c.reputation = svc
	return svc, nil
}

// Close flushes and shuts down any background machinery, such as the
// tracer provider
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.shutdownOnce.Do(func() {
		c.eventBus.Stop()
		for _, fn := range c.shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		c.shutdownFuncs = nil
	})
	return err
}
