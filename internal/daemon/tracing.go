package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing installs an SDK-backed TracerProvider as the process
// global so the scheduler's per-tick spans (internal/scheduler) run
// through real sampling and span-processing machinery instead of the
// otel API's default no-op provider. No exporter is attached: the spec
// scopes external tracing backends out, so spans are sampled and ended
// but never shipped anywhere.
func setupTracing() *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	return tp
}

func shutdownTracing(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
