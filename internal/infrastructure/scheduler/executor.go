package scheduler

import (
	"context"
	"fmt"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
)

// Reindexer rebuilds the search projection
type Reindexer interface {
	Reindex(ctx context.Context, recreate bool) (*catalogapp.ReindexReport, error)
}

// SortOrderRecomputer recomputes display order in every category
type SortOrderRecomputer interface {
	RecomputeAll(ctx context.Context) (int, error)
}

// CatalogJobExecutor runs catalog maintenance jobs
type CatalogJobExecutor struct {
	reindexer  Reindexer
	recomputer SortOrderRecomputer
}

// NewCatalogJobExecutor creates a new CatalogJobExecutor
func NewCatalogJobExecutor(reindexer Reindexer, recomputer SortOrderRecomputer) *CatalogJobExecutor {
	return &CatalogJobExecutor{reindexer: reindexer, recomputer: recomputer}
}

// Execute implements JobExecutor
func (e *CatalogJobExecutor) Execute(ctx context.Context, job *Job) (string, error) {
	switch job.Kind {
	case JobKindReindex:
		report, err := e.reindexer.Reindex(ctx, job.Recreate)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("indexed %d products in %d batches (%s)", report.Products, report.Batches, report.Duration), nil
	case JobKindRecomputeSortOrder:
		n, err := e.recomputer.RecomputeAll(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("recomputed %d categories", n), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
}
