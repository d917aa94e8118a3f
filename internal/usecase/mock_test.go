//go:build !integration

package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"codevault/internal/domain"
	"codevault/internal/domain/model"
	"codevault/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

// -----------------------------
// In-memory CodeRepository
// -----------------------------

// memCodeRepo mirrors the store's coordination semantics under a mutex:
// insert drops duplicate codes, redeem succeeds exactly once per code.
type memCodeRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.RedemptionCode
	byCode map[string]*model.RedemptionCode
	order  []string // ids in insertion order

	// optional hooks
	FilterExistingFunc func(candidates []string) (map[string]struct{}, error)
	InsertErr          error
}

var _ repository.CodeRepository = (*memCodeRepo)(nil)

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{
		byID:   map[string]*model.RedemptionCode{},
		byCode: map[string]*model.RedemptionCode{},
	}
}

func cloneCode(c *model.RedemptionCode) *model.RedemptionCode {
	cp := *c
	return &cp
}

func (m *memCodeRepo) InsertBatch(ctx context.Context, tx repository.Tx, codes []*model.RedemptionCode) ([]*model.RedemptionCode, error) {
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := make([]*model.RedemptionCode, 0, len(codes))
	seq := 1
	for _, c := range codes {
		if _, taken := m.byCode[c.Code]; taken {
			continue
		}
		cp := cloneCode(c)
		cp.BatchNumber = seq
		m.byID[cp.ID] = cp
		m.byCode[cp.Code] = cp
		m.order = append(m.order, cp.ID)
		inserted = append(inserted, cloneCode(cp))
		seq++
	}
	return inserted, nil
}

func (m *memCodeRepo) FilterExisting(ctx context.Context, tx repository.Tx, candidates []string) (map[string]struct{}, error) {
	if m.FilterExistingFunc != nil {
		return m.FilterExistingFunc(candidates)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := map[string]struct{}{}
	for _, c := range candidates {
		if _, ok := m.byCode[c]; ok {
			existing[c] = struct{}{}
		}
	}
	return existing, nil
}

func (m *memCodeRepo) Redeem(ctx context.Context, tx repository.Tx, code, actorID string, at time.Time) (*model.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byCode[code]
	if !ok || c.Status != model.CodeStatusUnredeemed || !c.IsActive {
		return nil, domain.ErrNotFound
	}
	c.Status = model.CodeStatusRedeemed
	c.RedeemedAt = &at
	c.RedeemedBy = &actorID
	c.UpdatedAt = at
	return cloneCode(c), nil
}

func (m *memCodeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCode(c), nil
}

func matchFilter(c *model.RedemptionCode, f repository.CodeFilter) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.BatchID != "" && c.BatchID != f.BatchID {
		return false
	}
	if f.OwnerID != "" && c.GeneratedBy != f.OwnerID {
		return false
	}
	if f.Search != "" && !strings.Contains(c.Code, f.Search) {
		return false
	}
	return true
}

func (m *memCodeRepo) List(ctx context.Context, tx repository.Tx, f repository.CodeFilter, offset, limit int) ([]*model.RedemptionCode, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.RedemptionCode
	for _, id := range m.order {
		if c := m.byID[id]; matchFilter(c, f) {
			all = append(all, cloneCode(c))
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memCodeRepo) remove(pred func(c *model.RedemptionCode) bool) []*model.RedemptionCode {
	var deleted []*model.RedemptionCode
	keep := m.order[:0]
	for _, id := range m.order {
		c := m.byID[id]
		if pred(c) {
			deleted = append(deleted, cloneCode(c))
			delete(m.byID, id)
			delete(m.byCode, c.Code)
			continue
		}
		keep = append(keep, id)
	}
	m.order = keep
	return deleted
}

func (m *memCodeRepo) DeleteByIDs(ctx context.Context, tx repository.Tx, ids []string, ownerID string) ([]*model.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]struct{}{}
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return m.remove(func(c *model.RedemptionCode) bool {
		_, ok := want[c.ID]
		return ok && (ownerID == "" || c.GeneratedBy == ownerID)
	}), nil
}

func (m *memCodeRepo) DeleteByBatch(ctx context.Context, tx repository.Tx, batchID, ownerID string) ([]*model.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(func(c *model.RedemptionCode) bool {
		return c.BatchID == batchID && (ownerID == "" || c.GeneratedBy == ownerID)
	}), nil
}

func (m *memCodeRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.CodeStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.CodeStatus]int{
		model.CodeStatusUnredeemed: 0,
		model.CodeStatusRedeemed:   0,
	}
	for _, c := range m.byID {
		counts[c.Status]++
	}
	return counts, nil
}

func (m *memCodeRepo) BatchSummaries(ctx context.Context, tx repository.Tx, limit int) ([]*repository.BatchSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg := map[string]*repository.BatchSummary{}
	for _, c := range m.byID {
		s, ok := agg[c.BatchID]
		if !ok {
			s = &repository.BatchSummary{BatchID: c.BatchID, GeneratedBy: c.GeneratedBy, Requested: c.Quantity, EarliestAt: c.CreatedAt}
			agg[c.BatchID] = s
		}
		s.Inserted++
		if c.Status == model.CodeStatusRedeemed {
			s.Redeemed++
		}
		if c.CreatedAt.Before(s.EarliestAt) {
			s.EarliestAt = c.CreatedAt
		}
	}
	out := make([]*repository.BatchSummary, 0, len(agg))
	for _, s := range agg {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarliestAt.After(out[j].EarliestAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------
// TransactionManager stub
// -----------------------------

type memTxManager struct{}

var _ repository.TransactionManager = (*memTxManager)(nil)

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}
