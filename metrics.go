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
	"time"

	"github.com/blinklabs-io/classly/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	providerRequests *prometheus.CounterVec
	txSubmissions    *prometheus.CounterVec
	confirmationTime prometheus.Histogram
}

func newMetrics(registry prometheus.Registerer) *metrics {
	factory := promauto.With(registry)
	return &metrics{
		providerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classly_provider_requests_total",
				Help: "Total chain provider requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		txSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classly_tx_submissions_total",
				Help: "Total transaction submissions by outcome",
			},
			[]string{"outcome"},
		),
		confirmationTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classly_tx_confirmation_seconds",
				Help:    "Time spent waiting for transaction confirmation",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// measuredProvider wraps a chain.Provider and counts its operations
type measuredProvider struct {
	next    chain.Provider
	metrics *metrics
}

func (p *measuredProvider) Health(ctx context.Context) error {
	err := p.next.Health(ctx)
	p.metrics.providerRequests.WithLabelValues(
		"health", outcomeLabel(err),
	).Inc()
	return err
}

func (p *measuredProvider) UtxosAt(
	ctx context.Context,
	address string,
) ([]chain.Utxo, error) {
	utxos, err := p.next.UtxosAt(ctx, address)
	p.metrics.providerRequests.WithLabelValues(
		"utxos_at", outcomeLabel(err),
	).Inc()
	return utxos, err
}

func (p *measuredProvider) SubmitTx(
	ctx context.Context,
	txCbor []byte,
) (string, error) {
	txID, err := p.next.SubmitTx(ctx, txCbor)
	p.metrics.providerRequests.WithLabelValues(
		"submit_tx", outcomeLabel(err),
	).Inc()
	p.metrics.txSubmissions.WithLabelValues(outcomeLabel(err)).Inc()
	return txID, err
}

func (p *measuredProvider) AwaitConfirmation(
	ctx context.Context,
	txID string,
) error {
	start := time.Now()
	err := p.next.AwaitConfirmation(ctx, txID)
	p.metrics.providerRequests.WithLabelValues(
		"await_confirmation", outcomeLabel(err),
	).Inc()
	if err == nil {
		p.metrics.confirmationTime.Observe(time.Since(start).Seconds())
	}
	return err
}
