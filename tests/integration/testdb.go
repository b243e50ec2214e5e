//go:build integration

// Package integration runs the catalog engine against a real PostgreSQL
// started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/erp/catalog-engine/internal/bootstrap"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/erp/catalog-engine/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

const (
	testDBName     = "catalog_test"
	testDBUser     = "postgres"
	testDBPassword = "admin123"
)

// TestDB is a migrated PostgreSQL container
type TestDB struct {
	Config    config.DatabaseConfig
	Container testcontainers.Container
}

// NewTestDB starts a fresh container per test and applies the embedded
// migrations
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(testDBName),
		tcpostgres.WithUsername(testDBUser),
		tcpostgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	tdb := &TestDB{
		Container: container,
		Config: config.DatabaseConfig{
			Driver:          "postgres",
			Host:            host,
			Port:            portNum,
			User:            testDBUser,
			Password:        testDBPassword,
			DBName:          testDBName,
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5,
			ConnMaxIdleTime: 1,
		},
	}
	tdb.migrate(t)
	return tdb
}

func (tdb *TestDB) migrate(t *testing.T) {
	t.Helper()
	sqlDB, err := sql.Open("postgres", tdb.Config.DSN())
	require.NoError(t, err)
	defer sqlDB.Close()

	m, err := migration.New(sqlDB, zaptest.NewLogger(t))
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}

// NewApp wires the engine against the container with in-process search and
// media. The outbox processor loop is off; tests drain it explicitly.
func (tdb *TestDB) NewApp(t *testing.T) *bootstrap.App {
	t.Helper()
	cfg := &config.Config{
		App:      config.AppConfig{Name: "catalog-engine-test", Env: "test"},
		Catalog:  config.CatalogConfig{DefaultCurrency: "uah"},
		Database: tdb.Config,
		Log:      config.LogConfig{Level: "warn"},
		Event:    config.EventConfig{BatchSize: 50, MaxRetries: 3},
		Search:   config.SearchConfig{Driver: "memory", BatchSize: 100},
		Storage:  config.StorageConfig{Driver: "memory"},
		Scheduler: config.SchedulerConfig{
			Workers:    1,
			QueueSize:  4,
			JobTimeout: time.Minute,
		},
		Cache: config.CacheConfig{TTL: time.Minute},
	}

	app, err := bootstrap.New(cfg, zaptest.NewLogger(t), bootstrap.Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.Start(ctx))
	t.Cleanup(func() {
		cancel()
		require.NoError(t, app.Close(context.Background()))
	})
	return app
}
