package internal

import (
	"context"
	"sync"
)

// Lightweight telemetry hook layer for the scaling pipeline. Callers
// may register a real OpenTelemetry emitter (or a test stub) via
// RegisterTelemetryEmitter; by default the emitter is a no-op, so the
// library carries no hard OTEL SDK dependency.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function. Passing
// nil restores the no-op emitter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

// EmitStageLatency records a latency measure (milliseconds) for one
// pipeline stage ("scale", "rules", "finish").
func EmitStageLatency(ctx context.Context, stage string, ms int64) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, "scale_pipeline_latency_histogram", map[string]string{"stage": stage}, ms)
}

// EmitWarningCount records how many warnings one pipeline run produced.
func EmitWarningCount(ctx context.Context, count int) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, "scale_pipeline_warning_count", nil, int64(count))
}
