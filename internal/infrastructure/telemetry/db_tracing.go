package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	// LogFullSQL keeps query variables in span statements. Development only.
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBName          string
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin, which opens a span per
// statement, plus callbacks that flag statements slower than
// SlowQueryThresh on that span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, tp trace.TracerProvider) error {
	opts := []otelgorm.Option{otelgorm.WithTracerProvider(tp)}
	if cfg.DBName != "" {
		opts = append(opts, otelgorm.WithDBName(cfg.DBName))
	}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(db *gorm.DB) { annotateSpan(db, cfg.SlowQueryThresh) }

	cb := db.Callback()
	registrations := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("catalog_timing:before_create", before) },
		func() error { return cb.Query().Before("gorm:query").Register("catalog_timing:before_query", before) },
		func() error { return cb.Update().Before("gorm:update").Register("catalog_timing:before_update", before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("catalog_timing:before_delete", before) },
		func() error { return cb.Row().Before("gorm:row").Register("catalog_timing:before_row", before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("catalog_timing:before_raw", before) },
		// the span must still be open, so run ahead of otelgorm's after hooks
		func() error {
			return cb.Create().After("gorm:create").Before("otel:after:create").Register("catalog_timing:after_create", after)
		},
		func() error {
			return cb.Query().After("gorm:query").Before("otel:after:select").Register("catalog_timing:after_query", after)
		},
		func() error {
			return cb.Update().After("gorm:update").Before("otel:after:update").Register("catalog_timing:after_update", after)
		},
		func() error {
			return cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("catalog_timing:after_delete", after)
		},
		func() error {
			return cb.Row().After("gorm:row").Before("otel:after:row").Register("catalog_timing:after_row", after)
		},
		func() error {
			return cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("catalog_timing:after_raw", after)
		},
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

func annotateSpan(db *gorm.DB, slow time.Duration) {
	ctx := db.Statement.Context
	if ctx == nil || slow <= 0 {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if elapsed := time.Since(start); elapsed > slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
