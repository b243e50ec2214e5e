// Package telemetry sets up OpenTelemetry traces, metrics and logs and
// Pyroscope continuous profiling for the service.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/grafana/pyroscope-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Telemetry owns the installed providers. A disabled Telemetry leaves the
// otel globals as no-ops so instruments created by services cost nothing.
type Telemetry struct {
	cfg      config.TelemetryConfig
	logger   *zap.Logger
	traces   *sdktrace.TracerProvider
	metrics  *sdkmetric.MeterProvider
	logs     *sdklog.LoggerProvider
	profiler *pyroscope.Profiler
}

// Setup installs the global tracer, meter and logger providers and starts
// the profiler when configured.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Telemetry, error) {
	t := &Telemetry{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		logger.Info("Telemetry disabled, using no-op providers")
		return t, nil
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	if t.traces, err = newTracerProvider(ctx, cfg, res); err != nil {
		return nil, err
	}
	if t.metrics, err = newMeterProvider(ctx, cfg, res); err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}
	if t.logs, err = newLoggerProvider(ctx, cfg, res); err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}

	var tp trace.TracerProvider = t.traces
	if cfg.ProfilingEnabled {
		if t.profiler, err = startProfiler(cfg, logger); err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		tp = withSpanProfiles(t.traces)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(t.metrics)
	global.SetLoggerProvider(t.logs)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("profiling", cfg.ProfilingEnabled),
	)
	return t, nil
}

// Enabled reports whether providers were installed
func (t *Telemetry) Enabled() bool {
	return t.traces != nil
}

// TracerProvider returns the installed provider, or the global one when
// telemetry is disabled
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.traces == nil {
		return otel.GetTracerProvider()
	}
	return t.traces
}

// Shutdown flushes and stops everything Setup started
func (t *Telemetry) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if t.profiler != nil {
		if err := t.profiler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop profiler: %w", err))
		}
		t.profiler = nil
	}
	if t.traces != nil {
		if err := t.traces.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if t.metrics != nil {
		if err := t.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if t.logs != nil {
		if err := t.logs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown logger provider: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		t.logger.Error("Telemetry shutdown incomplete", zap.Error(err))
		return err
	}
	return nil
}
