package repository

import (
	"context"
	"time"

	"codevault/internal/domain/model"
)

// CodeFilter narrows List queries. Nil/empty fields are not applied.
// OwnerID is also how ownership scoping reaches the store: the use case sets
// it to the actor's id for restricted actors before the query is built.
type CodeFilter struct {
	Status  *model.CodeStatus
	BatchID string
	OwnerID string
	Search  string // substring match on the code column
}

// BatchSummary aggregates one batch for the stats surface.
type BatchSummary struct {
	BatchID     string
	GeneratedBy string
	Requested   int
	Inserted    int
	Redeemed    int
	EarliestAt  time.Time
}

// CodeRepository is the port for the shared persistent code store. The store
// carries the two coordination primitives the core relies on: the unique
// constraint on code (who gets a code at insert time) and the conditional
// update (who redeems first).
type CodeRepository interface {
	// InsertBatch persists records as an unordered bulk insert. A record
	// whose code already exists is dropped, not an error; survivors come
	// back re-sequenced with contiguous batch numbers 1..K.
	InsertBatch(ctx context.Context, tx Tx, codes []*model.RedemptionCode) ([]*model.RedemptionCode, error)

	// FilterExisting returns the subset of candidates already present in
	// the store, checked in a single round-trip.
	FilterExisting(ctx context.Context, tx Tx, candidates []string) (map[string]struct{}, error)

	// Redeem atomically transitions code from unredeemed to redeemed and
	// returns the updated record. domain.ErrNotFound when no active,
	// unredeemed record matches.
	Redeem(ctx context.Context, tx Tx, code, actorID string, at time.Time) (*model.RedemptionCode, error)

	// FindByID fetches a single record.
	FindByID(ctx context.Context, tx Tx, id string) (*model.RedemptionCode, error)

	// List returns one page of records matching the filter plus the total
	// match count.
	List(ctx context.Context, tx Tx, f CodeFilter, offset, limit int) ([]*model.RedemptionCode, int, error)

	// DeleteByIDs removes the given records. When ownerID is non-empty the
	// deletion is scoped to records generated by that owner. Returns the
	// records actually deleted.
	DeleteByIDs(ctx context.Context, tx Tx, ids []string, ownerID string) ([]*model.RedemptionCode, error)

	// DeleteByBatch removes a whole batch, optionally owner-scoped.
	DeleteByBatch(ctx context.Context, tx Tx, batchID, ownerID string) ([]*model.RedemptionCode, error)

	// CountByStatus returns record counts grouped by status.
	CountByStatus(ctx context.Context, tx Tx) (map[model.CodeStatus]int, error)

	// BatchSummaries returns per-batch aggregates, newest first.
	BatchSummaries(ctx context.Context, tx Tx, limit int) ([]*BatchSummary, error)
}
