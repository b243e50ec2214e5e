package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestSetup_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tel, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, logger)
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.TracerProvider())
	assert.Same(t, logger, tel.WrapLogger(logger))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetup_Enabled(t *testing.T) {
	// gRPC exporters dial lazily, so nothing needs to listen here
	tel, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "127.0.0.1:1",
		Insecure:          true,
		SamplingRatio:     1,
		ServiceName:       "catalog-engine-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tel.Enabled())

	wrapped := tel.WrapLogger(zap.NewNop())
	wrapped.Info("goes to the otel pipeline")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
	assert.Contains(t, sampler(0.25).Description(), "ParentBased")
}

type tracedRow struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func TestRegisterDBTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{DBName: "catalog", SlowQueryThresh: time.Nanosecond}, tp))

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{ID: 1, Name: "a"}).Error)

	var row tracedRow
	err = db.WithContext(ctx).First(&row, 99).Error
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	span.End()

	var statements []sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() != "request" {
			statements = append(statements, s)
		}
	}
	require.Len(t, statements, 2)

	for _, s := range statements {
		attrs := attribute.NewSet(s.Attributes()...)
		table, ok := attrs.Value("db.sql.table")
		require.True(t, ok)
		assert.Equal(t, "traced_rows", table.AsString())
		slow, ok := attrs.Value("db.slow_query")
		require.True(t, ok)
		assert.True(t, slow.AsBool())
		assert.NotEqual(t, codes.Error, s.Status().Code, "record not found is not a span error")
	}
}
