// Package telemetry wires OpenTelemetry tracing/metrics and exposes the
// Telemetry Probe (spec.md §2, §4.9): scheduler/session gauges plus a
// process memory sample. Grounded on
// loqalabs-loqa-core/internal/runtime/telemetry.go's otel/Prometheus setup.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config names the service and selects the tracing exporter: OTLP over gRPC
// when OTLPEndpoint is set, stdout otherwise.
type Config struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Gauges are the scheduler/session observations sampled on demand by the
// OpenTelemetry callback registered in Setup; that callback takes the process
// memory sample itself. SessionsOpen is the external
// System Telemetry Probe's own numerical surface (spec.md §1) folded into
// the same exposition endpoint the rest of the ambient stack uses.
type Gauges struct {
	SessionsOpen  func() int64
	QueueDepth    func() int64
	ActiveDecodes func() int64
}

// Shutdown flushes and tears down the tracer/meter providers.
type Shutdown func(context.Context) error

// Setup initializes tracing + metrics and returns the Prometheus HTTP
// handler to mount at /metrics plus a Shutdown func for graceful exit.
func Setup(cfg Config, gauges Gauges) (Shutdown, http.Handler, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	tracerProvider, traceShutdown, err := initTracer(ctx, cfg, res)
	if err != nil {
		return nil, nil, err
	}
	otel.SetTracerProvider(tracerProvider)

	meterProvider, handler, err := initMetrics(res, gauges)
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := traceShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return shutdown, handler, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		slog.Info("telemetry initialized", "exporter", "otlp", "endpoint", endpoint)
		return tp, tp.Shutdown, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	slog.Info("telemetry initialized", "exporter", "stdout")
	return tp, tp.Shutdown, nil
}

func initMetrics(res *resource.Resource, gauges Gauges) (*sdkmetric.MeterProvider, http.Handler, error) {
	promExporter, err := otelprometheus.New()
	if err != nil {
		slog.Warn("failed to initialize prometheus exporter", "error", err)
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		return mp, nil, nil
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)

	meter := mp.Meter("autotalk.core")
	if err := registerObservables(meter, gauges); err != nil {
		slog.Warn("failed to register telemetry observables", "error", err)
	}

	return mp, promhttp.Handler(), nil
}

func registerObservables(meter metric.Meter, gauges Gauges) error {
	sessionsOpen, err := meter.Int64ObservableGauge("autotalk_sessions_open",
		metric.WithDescription("sessions currently in the Open state"))
	if err != nil {
		return err
	}
	queueDepth, err := meter.Int64ObservableGauge("autotalk_scheduler_queue_depth",
		metric.WithDescription("pending decode tasks queued by the scheduler"))
	if err != nil {
		return err
	}
	activeDecodes, err := meter.Int64ObservableGauge("autotalk_scheduler_active_decodes",
		metric.WithDescription("decodes currently in flight across all sessions"))
	if err != nil {
		return err
	}
	memAlloc, err := meter.Int64ObservableGauge("autotalk_process_memory_bytes",
		metric.WithDescription("process heap allocation sampled via runtime.MemStats"))
	if err != nil {
		return err
	}
	gpuAvailable, err := meter.Int64ObservableGauge("autotalk_gpu_available",
		metric.WithDescription("1 if a GPU sampling backend is wired, 0 otherwise"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if gauges.SessionsOpen != nil {
			o.ObserveInt64(sessionsOpen, gauges.SessionsOpen())
		}
		if gauges.QueueDepth != nil {
			o.ObserveInt64(queueDepth, gauges.QueueDepth())
		}
		if gauges.ActiveDecodes != nil {
			o.ObserveInt64(activeDecodes, gauges.ActiveDecodes())
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		o.ObserveInt64(memAlloc, int64(ms.Alloc))
		o.ObserveInt64(gpuAvailable, 0)
		return nil
	}, sessionsOpen, queueDepth, activeDecodes, memAlloc, gpuAvailable)
	return err
}
