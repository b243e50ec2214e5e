package catalog

import (
	"context"
	"strings"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/search"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const repriceBatchSize = 200

// PriceProjector applies exchange-rate changes to default-currency prices
// in catalog storage and in the search sink
type PriceProjector struct {
	scope           TransactionScope
	sink            search.Sink
	dispatcher      EventDispatcher
	defaultCurrency string
	logger          *zap.Logger
	sinkFailures    metric.Int64Counter
}

// NewPriceProjector creates a new PriceProjector
func NewPriceProjector(
	scope TransactionScope,
	sink search.Sink,
	dispatcher EventDispatcher,
	defaultCurrency string,
	logger *zap.Logger,
) *PriceProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	failures, _ := otel.Meter("catalog-engine/pricing").Int64Counter(
		"catalog.search.sink_failures",
		metric.WithDescription("Search sink calls that failed and were only logged"),
	)
	return &PriceProjector{
		scope:           scope,
		sink:            sink,
		dispatcher:      dispatcher,
		defaultCurrency: strings.ToLower(defaultCurrency),
		logger:          logger,
		sinkFailures:    failures,
	}
}

// HandleRateChange persists a rate and reprices every variant quoted in
// that currency. A sink failure is logged and reported in the result; the
// catalog change stays committed and the next reindex repairs the sink.
func (p *PriceProjector) HandleRateChange(ctx context.Context, change RateChange) (*RateChangeResult, error) {
	currency, err := catalog.NewCurrency(change.Currency, change.Rate)
	if err != nil {
		return nil, err
	}
	if currency.Code == p.defaultCurrency {
		if !currency.Rate.Equal(decimal.NewFromInt(1)) {
			return nil, shared.NewValidationError("the default currency %s must keep rate 1", currency.Code)
		}
		currency.IsDefault = true
	}

	var repriced []int64
	err = p.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.Currencies().Save(ctx, currency); err != nil {
			return err
		}
		ids, err := repos.Products().FindByCurrency(ctx, currency.Code)
		if err != nil {
			return err
		}
		for start := 0; start < len(ids); start += repriceBatchSize {
			end := min(start+repriceBatchSize, len(ids))
			products, err := repos.Products().FindByIDs(ctx, ids[start:end])
			if err != nil {
				return err
			}
			for _, product := range products {
				if !product.Reprice(currency.Code, currency.Rate) {
					continue
				}
				if err := repos.Products().Save(ctx, product); err != nil {
					return err
				}
				repriced = append(repriced, product.ID)
			}
		}
		return repos.Events().SaveEvents(ctx, catalog.NewPricesReprojectedEvent(currency, repriced))
	})
	if err != nil {
		return nil, err
	}
	if p.dispatcher != nil {
		p.dispatcher.Trigger()
	}

	result := &RateChangeResult{
		Currency:         currency.Code,
		Rate:             currency.Rate,
		RepricedProducts: len(repriced),
	}
	rate, _ := currency.Rate.Float64()
	updated, err := p.sink.UpdateByQuery(ctx, catalog.ProductIndex,
		catalog.RepriceFilter(currency.Code), catalog.RepriceScript(currency.Code, rate))
	if err != nil {
		result.SinkUpdateFailed = true
		if p.sinkFailures != nil {
			p.sinkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "reprice")))
		}
		p.logger.Error("search reprice failed",
			zap.String("currency", currency.Code),
			zap.String("rate", currency.Rate.String()),
			zap.Error(err),
		)
	}
	result.SinkDocsUpdated = updated

	p.logger.Info("currency rate applied",
		zap.String("currency", currency.Code),
		zap.String("rate", currency.Rate.String()),
		zap.Int("repriced_products", len(repriced)),
		zap.Int64("sink_docs_updated", updated),
	)
	return result, nil
}
