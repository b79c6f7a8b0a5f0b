package service

import (
	"context"
	"fmt"

	"Trendline/backend/go/internal/ledger"
	"Trendline/backend/go/internal/metrics"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/logger"
)

// NewsFetcher produces a batch of news evidence for a query.
type NewsFetcher interface {
	FetchBatch(ctx context.Context, query string) ([]models.EvidenceItem, error)
}

// SummaryMerger folds evidence into an entity summary.
type SummaryMerger interface {
	Merge(ctx context.Context, ref models.EntityRef, evidence []models.EvidenceItem) (models.Summary, error)
}

// NewsCycle is the slow scheduled action: fetch news, drop what was already merged, merge the rest into the global entity.
type NewsCycle struct {
	fetcher NewsFetcher
	ledger  *ledger.Ledger
	merger  SummaryMerger
	ref     models.EntityRef
	query   string
	logger  *logger.Logger
}

func NewNewsCycle(fetcher NewsFetcher, l *ledger.Ledger, m SummaryMerger, ref models.EntityRef, query string, log *logger.Logger) *NewsCycle {
	return &NewsCycle{
		fetcher: fetcher,
		ledger:  l,
		merger:  m,
		ref:     ref,
		query:   query,
		logger:  log.WithField("component", "news_cycle"),
	}
}

// Run executes one ingestion cycle. A failed search or merge is returned; the summary stays as it was.
func (c *NewsCycle) Run(ctx context.Context) error {
	batch, err := c.fetcher.FetchBatch(ctx, c.query)
	if err != nil {
		metrics.IngestionCycles.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("news cycle: %w", err)
	}

	fresh, err := c.ledger.FilterNew(ctx, c.ref, batch)
	if err != nil {
		metrics.IngestionCycles.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("news cycle: %w", err)
	}
	log := c.logger.WithPayload(map[string]interface{}{
		"entity":  c.ref.Key(),
		"fetched": len(batch),
		"new":     len(fresh),
	})
	if len(fresh) == 0 {
		metrics.IngestionCycles.WithLabelValues(metrics.ResultNoop).Inc()
		log.Info("news cycle found nothing new")
		return nil
	}

	if _, err := c.merger.Merge(ctx, c.ref, fresh); err != nil {
		metrics.IngestionCycles.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("news cycle: %w", err)
	}
	metrics.IngestionCycles.WithLabelValues(metrics.ResultOK).Inc()
	log.Info("news cycle merged")
	return nil
}
