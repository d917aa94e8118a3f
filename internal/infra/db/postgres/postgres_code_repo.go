package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"codevault/internal/domain"
	"codevault/internal/domain/model"
	"codevault/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.CodeRepository = (*codeRepo)(nil)

type codeRepo struct {
	pool *pgxpool.Pool
}

func NewCodeRepo(pool *pgxpool.Pool) repository.CodeRepository {
	return &codeRepo{pool: pool}
}

const codeColumns = `id, code, status, generated_by, batch_id, quantity, batch_number,
       is_active, redeemed_at, redeemed_by, metadata, created_at, updated_at`

func scanCode(row pgx.Row) (*model.RedemptionCode, error) {
	var c model.RedemptionCode
	var meta []byte
	err := row.Scan(
		&c.ID, &c.Code, &c.Status, &c.GeneratedBy, &c.BatchID, &c.Quantity, &c.BatchNumber,
		&c.IsActive, &c.RedeemedAt, &c.RedeemedBy, &meta, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &c, nil
}

// InsertBatch persists records one by one with ON CONFLICT (code) DO NOTHING,
// so a duplicate-key rejection drops that record without aborting the rest.
// Batch numbers are assigned at insert time from a counter that only advances
// on success, keeping the surviving sequence contiguous (1..K).
func (r *codeRepo) InsertBatch(ctx context.Context, tx repository.Tx, codes []*model.RedemptionCode) ([]*model.RedemptionCode, error) {
	const q = `
INSERT INTO redemption_codes (` + codeColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (code) DO NOTHING;
`
	inserted := make([]*model.RedemptionCode, 0, len(codes))
	seq := 1
	for _, c := range codes {
		meta, err := json.Marshal(metadataOrEmpty(c.Metadata))
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		c.BatchNumber = seq
		tag, err := execSQL(ctx, r.pool, tx, q,
			c.ID, c.Code, c.Status, c.GeneratedBy, c.BatchID, c.Quantity, c.BatchNumber,
			c.IsActive, c.RedeemedAt, c.RedeemedBy, meta, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			// lost the code to a concurrent insert; slot is dropped
			continue
		}
		inserted = append(inserted, c)
		seq++
	}
	return inserted, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// FilterExisting reports which candidates are already taken, in one query.
func (r *codeRepo) FilterExisting(ctx context.Context, tx repository.Tx, candidates []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(candidates))
	if len(candidates) == 0 {
		return existing, nil
	}
	rows, err := pickRows(ctx, r.pool, tx, `SELECT code FROM redemption_codes WHERE code = ANY($1);`, candidates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		existing[code] = struct{}{}
	}
	return existing, rows.Err()
}

// Redeem performs the single atomic conditional update that closes the
// read-then-write race: only a row still unredeemed (and active) matches, so
// of N concurrent attempts exactly one sees RowsAffected=1.
func (r *codeRepo) Redeem(ctx context.Context, tx repository.Tx, code, actorID string, at time.Time) (*model.RedemptionCode, error) {
	const q = `
UPDATE redemption_codes
   SET status = 'redeemed', redeemed_at = $2, redeemed_by = $3, updated_at = $2
 WHERE code = $1 AND status = 'unredeemed' AND is_active
RETURNING ` + codeColumns + `;
`
	row, err := pickRow(ctx, r.pool, tx, q, code, at, actorID)
	if err != nil {
		return nil, err
	}
	rec, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *codeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RedemptionCode, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM redemption_codes WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	rec, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// buildFilter translates the named filter fields into a WHERE clause once,
// shared by the count and page queries.
func buildFilter(f repository.CodeFilter) (string, []interface{}) {
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.BatchID != "" {
		add("batch_id = $%d", f.BatchID)
	}
	if f.OwnerID != "" {
		add("generated_by = $%d", f.OwnerID)
	}
	if f.Search != "" {
		add("code LIKE '%%' || $%d || '%%'", f.Search)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *codeRepo) List(ctx context.Context, tx repository.Tx, f repository.CodeFilter, offset, limit int) ([]*model.RedemptionCode, int, error) {
	where, args := buildFilter(f)

	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM redemption_codes`+where+`;`, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	q := `SELECT ` + codeColumns + ` FROM redemption_codes` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, batch_number ASC OFFSET $%d LIMIT $%d;`, len(args)+1, len(args)+2)
	rows, err := pickRows(ctx, r.pool, tx, q, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.RedemptionCode, 0, limit)
	for rows.Next() {
		rec, err := scanCode(rows)
		if err != nil {
			return nil, 0, domain.ErrReadDatabaseRow
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *codeRepo) deleteWhere(ctx context.Context, tx repository.Tx, where string, args ...interface{}) ([]*model.RedemptionCode, error) {
	q := `DELETE FROM redemption_codes WHERE ` + where + ` RETURNING ` + codeColumns + `;`
	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deleted []*model.RedemptionCode
	for rows.Next() {
		rec, err := scanCode(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		deleted = append(deleted, rec)
	}
	return deleted, rows.Err()
}

// DeleteByIDs removes records by id, intersected with the owner's visible
// set when ownerID is non-empty.
func (r *codeRepo) DeleteByIDs(ctx context.Context, tx repository.Tx, ids []string, ownerID string) ([]*model.RedemptionCode, error) {
	if ownerID != "" {
		return r.deleteWhere(ctx, tx, `id = ANY($1) AND generated_by = $2`, ids, ownerID)
	}
	return r.deleteWhere(ctx, tx, `id = ANY($1)`, ids)
}

// DeleteByBatch removes a whole batch, optionally owner-scoped.
func (r *codeRepo) DeleteByBatch(ctx context.Context, tx repository.Tx, batchID, ownerID string) ([]*model.RedemptionCode, error) {
	if ownerID != "" {
		return r.deleteWhere(ctx, tx, `batch_id = $1 AND generated_by = $2`, batchID, ownerID)
	}
	return r.deleteWhere(ctx, tx, `batch_id = $1`, batchID)
}

func (r *codeRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.CodeStatus]int, error) {
	rows, err := pickRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM redemption_codes GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.CodeStatus]int{
		model.CodeStatusUnredeemed: 0,
		model.CodeStatusRedeemed:   0,
	}
	for rows.Next() {
		var status model.CodeStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *codeRepo) BatchSummaries(ctx context.Context, tx repository.Tx, limit int) ([]*repository.BatchSummary, error) {
	const q = `
SELECT batch_id, generated_by, MAX(quantity), COUNT(*),
       COUNT(*) FILTER (WHERE status = 'redeemed'), MIN(created_at)
  FROM redemption_codes
 GROUP BY batch_id, generated_by
 ORDER BY MIN(created_at) DESC
 LIMIT $1;
`
	rows, err := pickRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*repository.BatchSummary
	for rows.Next() {
		var s repository.BatchSummary
		if err := rows.Scan(&s.BatchID, &s.GeneratedBy, &s.Requested, &s.Inserted, &s.Redeemed, &s.EarliestAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
