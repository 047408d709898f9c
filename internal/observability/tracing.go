package observability

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/sdk/trace"
)

// tracerName identifies this module's spans in whatever backend Jaeger
// forwards them to, independent of which binary (daemon, relay, cmd/send,
// cmd/receive) emitted them.
const tracerName = "github.com/quantarax/relay"

// InitTracing wires up an OpenTelemetry TracerProvider exporting to Jaeger.
// With OTEL_EXPORTER_JAEGER_ENDPOINT unset, tracing stays a no-op: StartSpan
// still works, it just reports to the global no-op provider otel defaults
// to, so instrumented code never needs a build tag to skip it.
func InitTracing(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_JAEGER_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp, trace.WithMaxExportBatchSize(512), trace.WithBatchTimeout(5*time.Second)),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartSpan begins a span for one named operation in the transfer pipeline
// (e.g. "establish_connection", "send_file"). The returned end func records
// err on the span (if non-nil) and closes it; callers typically do
// `defer func() { end(err) }()` with a named return. Cheap to call even
// when InitTracing never configured a real exporter.
func StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
