package sched

import (
	"context"
	"time"

	"codevault/internal/infra/metrics"
	"codevault/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// StatsWorker periodically refreshes the code-count gauges and connection
// pool stats so Prometheus sees current store state without a query per
// scrape.
type StatsWorker struct {
	interval time.Duration
	statsUC  usecase.StatsUseCase
	pool     *pgxpool.Pool
	log      *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, statsUC usecase.StatsUseCase, pool *pgxpool.Pool, logger *zerolog.Logger) *StatsWorker {
	l := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{interval: interval, statsUC: statsUC, pool: pool, log: &l}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *StatsWorker) refresh(ctx context.Context) {
	counts, err := w.statsUC.Totals(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("stats refresh failed")
		return
	}
	for status, n := range counts {
		metrics.SetCodesTotal(string(status), n)
	}
	if w.pool != nil {
		st := w.pool.Stat()
		metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
	}
}
