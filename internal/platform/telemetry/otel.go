// Package telemetry wires OpenTelemetry tracing around the engine's ticks,
// history collapse passes, and clipboard paste/group operations. Only the stdout
// exporter is wired; there is no OTLP endpoint.
package telemetry

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/corestate/statecraft/internal/platform/envutil"
	"github.com/corestate/statecraft/internal/platform/logger"
)

// Config carries telemetry's tunables, sourced from envutil.
type Config struct {
	ServiceName string
	Environment string
	Enabled     bool
	SampleRatio float64
}

// ConfigFromEnv builds a Config from OTEL_* env vars, defaulting to
// disabled so a bare `go test` run never pays exporter setup cost.
func ConfigFromEnv(serviceName string) Config {
	return Config{
		ServiceName: serviceName,
		Environment: envutil.Str("ENVIRONMENT", "development"),
		Enabled:     envutil.Bool("OTEL_ENABLED", false),
		SampleRatio: parseRatio(envutil.Str("OTEL_SAMPLER_RATIO", "0.1")),
	}
}

func parseRatio(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0.1
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

var (
	once     sync.Once
	shutdown func(context.Context) error
)

// Init installs a global TracerProvider exporting to stdout (always
// pretty-printed) when cfg.Enabled; otherwise it installs a no-op
// provider so Tracer() calls are always safe. Returns a shutdown func to
// defer from main.
func Init(ctx context.Context, log *logger.Logger, cfg Config) func(context.Context) error {
	once.Do(func() {
		if !cfg.Enabled {
			shutdown = func(context.Context) error { return nil }
			return
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			attribute.String("service.name", orDefault(cfg.ServiceName, "statecraft")),
			attribute.String("deployment.environment", cfg.Environment),
		))
		if err != nil && log != nil {
			log.Warn("telemetry resource init failed (continuing)", "error", err)
		}
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			if log != nil {
				log.Warn("telemetry exporter init failed, tracing disabled", "error", err)
			}
			shutdown = func(context.Context) error { return nil }
			return
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		if log != nil {
			log.Info("telemetry initialized", "service", cfg.ServiceName, "sample_ratio", cfg.SampleRatio)
		}
	})
	return shutdown
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Tracer returns the named tracer from the globally installed provider
// (a no-op provider before Init, or when telemetry is disabled).
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartEngineTick opens a span around one engine suspension-to-suspension
// tick, named for the state path it covers.
func StartEngineTick(ctx context.Context, statePath string) (context.Context, trace.Span) {
	return Tracer("statecraft/engine").Start(ctx, "engine.tick", trace.WithAttributes(
		attribute.String("state_path", statePath),
	))
}

// StartHistoryOp opens a span around a history Put or collapse pass.
func StartHistoryOp(ctx context.Context, op string) (context.Context, trace.Span) {
	return Tracer("statecraft/history").Start(ctx, "history."+op)
}

// StartClipboardOp opens a span around a clipboard structural edit.
func StartClipboardOp(ctx context.Context, op string) (context.Context, trace.Span) {
	return Tracer("statecraft/clipboard").Start(ctx, "clipboard."+op)
}
