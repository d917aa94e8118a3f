package usecase

import (
	"context"

	"codevault/internal/domain/model"
	"codevault/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Totals(ctx context.Context) (map[model.CodeStatus]int, error)
	Batches(ctx context.Context, limit int) ([]*repository.BatchSummary, error)
}

type statsUC struct {
	codes repository.CodeRepository
	txm   repository.TransactionManager
	log   *zerolog.Logger
}

func NewStatsUseCase(codes repository.CodeRepository, txm repository.TransactionManager, logger *zerolog.Logger) *statsUC {
	return &statsUC{codes: codes, txm: txm, log: logger}
}

// Totals returns current record counts by status, read inside a repeatable
// read transaction so a concurrent redemption cannot skew the snapshot.
func (s *statsUC) Totals(ctx context.Context) (map[model.CodeStatus]int, error) {
	if s.txm == nil {
		return s.codes.CountByStatus(ctx, repository.NoTX)
	}
	var counts map[model.CodeStatus]int
	err := s.txm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		counts, err = s.codes.CountByStatus(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *statsUC) Batches(ctx context.Context, limit int) ([]*repository.BatchSummary, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return s.codes.BatchSummaries(ctx, repository.NoTX, limit)
}
