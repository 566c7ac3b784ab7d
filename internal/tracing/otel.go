package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "shipdesk"

// Span attribute keys for the chat domain. Session ids are attached from
// the tracing context so spans correlate with log lines carrying the same
// session_id field.
const (
	AttrSessionID = attribute.Key("chat.session_id")
	AttrTurn      = attribute.Key("chat.turn")
	AttrProvider  = attribute.Key("chat.provider")
	AttrTurns     = attribute.Key("archive.turns")
)

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// InitOpenTelemetry initializes a process-wide OpenTelemetry tracer
// provider identifying this service and build. It is safe to call
// multiple times; only the first call's identity wins.
func InitOpenTelemetry(serviceName, serviceVersion string) error {
	providerOnce.Do(func() {
		res, err := resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(serviceVersion),
			),
		)
		if err != nil {
			providerErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1))),
			sdktrace.WithResource(res),
		)

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// ShutdownOpenTelemetry flushes and shuts down the global tracer provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span and mirrors the span's trace id into the
// tracing context when none is set, so log lines and spans share one id.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	if sessionID := GetSessionID(ctx); sessionID != "" {
		attrs = append(attrs, AttrSessionID.String(sessionID))
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		sc := span.SpanContext()
		if sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}

// StartTurnSpan starts the span covering one completion call of a chat turn
func StartTurnSpan(ctx context.Context, provider string, turn int) (context.Context, trace.Span) {
	return StartSpan(ctx, "chat.turn",
		AttrProvider.String(provider),
		AttrTurn.Int(turn),
	)
}

// StartArchiveSpan starts the span covering one transcript archive write
func StartArchiveSpan(ctx context.Context, turns int) (context.Context, trace.Span) {
	return StartSpan(ctx, "archive.write",
		AttrTurns.Int(turns),
	)
}
