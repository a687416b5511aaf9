// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tracing builds the gateway's OpenTelemetry TracerProvider
// and exposes the single tracer every instrumented package pulls spans
// from. No OTLP exporter ships with this build - without one, the SDK
// still records and propagates spans in-process (useful for anything
// reading span context off ctx, and a building block for wiring a real
// collector later), it just never ships them off-host.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceTracerName is the instrumentation name every span in this
// module is recorded under.
const ServiceTracerName = "sdpgw"

// Init installs a TracerProvider sampling every span, with no exporter
// attached, and returns its Tracer plus a shutdown func.
func Init() (trace.Tracer, func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Tracer(ServiceTracerName), tp.Shutdown
}
