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
	"github.com/blinklabs-io/classly/event"
)

// eventedProvider wraps a chain.Provider and publishes transaction
// lifecycle events
type eventedProvider struct {
	next chain.Provider
	bus  *event.EventBus
}

func (p *eventedProvider) Health(ctx context.Context) error {
	return p.next.Health(ctx)
}

func (p *eventedProvider) UtxosAt(
	ctx context.Context,
	address string,
) ([]chain.Utxo, error) {
	return p.next.UtxosAt(ctx, address)
}

func (p *eventedProvider) SubmitTx(
	ctx context.Context,
	txCbor []byte,
) (string, error) {
	txID, err := p.next.SubmitTx(ctx, txCbor)
	if err != nil {
		p.bus.Publish(
			event.TransactionFailedEventType,
			event.NewEvent(
				event.TransactionFailedEventType,
				event.TransactionFailedEvent{Error: err.Error()},
			),
		)
		return "", err
	}
	p.bus.Publish(
		event.TransactionSubmittedEventType,
		event.NewEvent(
			event.TransactionSubmittedEventType,
			event.TransactionSubmittedEvent{TxID: txID},
		),
	)
	return txID, nil
}

func (p *eventedProvider) AwaitConfirmation(
	ctx context.Context,
	txID string,
) error {
	start := time.Now()
	if err := p.next.AwaitConfirmation(ctx, txID); err != nil {
		return err
	}
	p.bus.Publish(
		event.TransactionConfirmedEventType,
		event.NewEvent(
			event.TransactionConfirmedEventType,
			event.TransactionConfirmedEvent{
				TxID:    txID,
				Elapsed: time.Since(start),
			},
		),
	)
	return nil
}
