package main

import (
	"context"
	"fmt"
	"os"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/bootstrap"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/erp/catalog-engine/internal/infrastructure/logger"
	"github.com/erp/catalog-engine/internal/infrastructure/messaging"
	"github.com/erp/catalog-engine/internal/interfaces/cli"
	"go.uber.org/zap"
)

func main() {
	root := cli.NewRootCommand(open)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func open(ctx context.Context) (cli.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.New(cfg, log, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	if err := app.Projection.EnsureIndex(ctx); err != nil {
		log.Warn("Search index check failed", zap.Error(err))
	}

	e := &engine{app: app, log: log}
	if cfg.Kafka.Enabled {
		e.rates = messaging.NewRatePublisher(messaging.NewKafkaWriter(cfg.Kafka))
	}
	return e, nil
}

// engine runs commands in process. Events written by the services are
// delivered by draining the outbox before returning, since no processor
// loop runs.
type engine struct {
	app   *bootstrap.App
	rates *messaging.RatePublisher
	log   *zap.Logger
}

func (e *engine) Reindex(ctx context.Context, recreate bool) (*catalogapp.ReindexReport, error) {
	return e.app.Projection.Reindex(ctx, recreate)
}

func (e *engine) RecomputeSortOrder(ctx context.Context, categoryID int64) (int, []int64, error) {
	if categoryID == 0 {
		n, err := e.app.SortOrder.RecomputeAll(ctx)
		if err != nil {
			return 0, nil, err
		}
		return n, nil, e.drain(ctx)
	}
	res, err := e.app.SortOrder.RecomputeCategoryOrder(ctx, categoryID)
	if err != nil {
		return 0, nil, err
	}
	return 1, res.ChangedProductIDs, e.drain(ctx)
}

func (e *engine) SetRate(ctx context.Context, change catalogapp.RateChange) (*cli.RateOutcome, error) {
	if e.rates != nil {
		if err := e.rates.Publish(ctx, change); err != nil {
			return nil, err
		}
		return &cli.RateOutcome{Published: true}, nil
	}
	res, err := e.app.Prices.HandleRateChange(ctx, change)
	if err != nil {
		return nil, err
	}
	return &cli.RateOutcome{Result: res}, e.drain(ctx)
}

func (e *engine) drain(ctx context.Context) error {
	if err := e.app.Bus.Start(ctx); err != nil {
		return err
	}
	n, err := e.app.Outbox.Drain(ctx)
	if err != nil {
		return fmt.Errorf("deliver events: %w", err)
	}
	e.log.Debug("Outbox drained", zap.Int("events", n))
	return nil
}

func (e *engine) Close(ctx context.Context) error {
	if e.rates != nil {
		if err := e.rates.Close(); err != nil {
			e.log.Warn("Failed to close rate publisher", zap.Error(err))
		}
	}
	err := e.app.Close(ctx)
	_ = e.log.Sync()
	return err
}
