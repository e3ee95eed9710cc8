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

	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/internal/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// setupTracing configures the global tracer provider. The OTLP HTTP
// exporter reads its endpoint from the standard OTEL_EXPORTER_OTLP
// environment variables
func (c *Client) setupTracing() error {
	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error
	if c.config.tracingStdout {
		exporter, err = stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
	} else {
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		return err
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("classly"),
			semconv.ServiceVersion(version.GetVersionString()),
		),
	)
	if err != nil {
		return err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	c.shutdownFuncs = append(c.shutdownFuncs, tracerProvider.Shutdown)
	return nil
}

// tracedProvider wraps a chain.Provider with spans around each
// provider round trip
type tracedProvider struct {
	next   chain.Provider
	tracer trace.Tracer
}

func (p *tracedProvider) span(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	return p.tracer.Start(
		ctx,
		name,
		trace.WithAttributes(attrs...),
	)
}

func (p *tracedProvider) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (p *tracedProvider) Health(ctx context.Context) error {
	ctx, span := p.span(ctx, "provider.health")
	err := p.next.Health(ctx)
	p.finish(span, err)
	return err
}

func (p *tracedProvider) UtxosAt(
	ctx context.Context,
	address string,
) ([]chain.Utxo, error) {
	ctx, span := p.span(
		ctx,
		"provider.utxos_at",
		attribute.String("address", address),
	)
	utxos, err := p.next.UtxosAt(ctx, address)
	p.finish(span, err)
	return utxos, err
}

func (p *tracedProvider) SubmitTx(
	ctx context.Context,
	txCbor []byte,
) (string, error) {
	ctx, span := p.span(
		ctx,
		"provider.submit_tx",
		attribute.Int("tx_size", len(txCbor)),
	)
	txID, err := p.next.SubmitTx(ctx, txCbor)
	if err == nil {
		span.SetAttributes(attribute.String("tx_id", txID))
	}
	p.finish(span, err)
	return txID, err
}

func (p *tracedProvider) AwaitConfirmation(
	ctx context.Context,
	txID string,
) error {
	ctx, span := p.span(
		ctx,
		"provider.await_confirmation",
		attribute.String("tx_id", txID),
	)
	err := p.next.AwaitConfirmation(ctx, txID)
	p.finish(span, err)
	return err
}
