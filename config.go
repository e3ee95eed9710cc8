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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/wallet"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	NetworkMainnet = "mainnet"
	NetworkPreview = "preview"
)

type Config struct {
	logger        *slog.Logger
	promRegistry  prometheus.Registerer
	provider      chain.Provider
	wallet        wallet.Wallet
	blueprints    *blueprint.Store
	network       string
	networkID     uint8
	tracing       bool
	tracingStdout bool
	now           func() time.Time
}

// ConfigOptionFunc is a type that represents functions that modify the
// client config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new classly config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		network: NetworkPreview,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding
// log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithNetwork specifies the named network (mainnet or preview)
func WithNetwork(network string) ConfigOptionFunc {
	return func(c *Config) {
		c.network = network
	}
}

// WithProvider specifies the chain provider used for queries and
// submission
func WithProvider(provider chain.Provider) ConfigOptionFunc {
	return func(c *Config) {
		c.provider = provider
	}
}

// WithWallet specifies the wallet used to source inputs and sign
// transactions
func WithWallet(w wallet.Wallet) ConfigOptionFunc {
	return func(c *Config) {
		c.wallet = w
	}
}

// WithBlueprints specifies the validator blueprint store
func WithBlueprints(store *blueprint.Store) ConfigOptionFunc {
	return func(c *Config) {
		c.blueprints = store
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout instead of OTLP HTTP
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithClock overrides the wall clock, used in tests
func WithClock(now func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		if now != nil {
			c.now = now
		}
	}
}

// configPopulateNetworkID maps the named network onto the address
// network identifier
func (c *Config) configPopulateNetworkID() error {
	switch c.network {
	case NetworkMainnet:
		c.networkID = lcommon.AddressNetworkMainnet
	case NetworkPreview:
		c.networkID = lcommon.AddressNetworkTestnet
	default:
		return fmt.Errorf("unknown network: %s", c.network)
	}
	return nil
}

func (c *Config) configValidate() error {
	if c.provider == nil {
		return errors.New("no chain provider defined")
	}
	if c.wallet == nil {
		return errors.New("no wallet defined")
	}
	if c.blueprints == nil {
		return errors.New("no validator blueprints defined")
	}
	return nil
}
