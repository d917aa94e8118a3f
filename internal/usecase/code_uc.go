package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codevault/internal/domain"
	"codevault/internal/domain/model"
	"codevault/internal/domain/ports/repository"
	"codevault/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ CodeUseCase = (*codeUC)(nil)

// CodeUseCase is the operation surface for redemption codes. Every entry
// point operating on a code record applies the same ownership scoping:
// privileged actors see and mutate everything, restricted actors only
// records they generated.
type CodeUseCase interface {
	Generate(ctx context.Context, actor model.Actor, quantity, length int, metadata map[string]string) (*model.GenerateResult, error)
	Redeem(ctx context.Context, actor model.Actor, code string) (*model.RedemptionCode, error)
	Get(ctx context.Context, actor model.Actor, id string) (*model.RedemptionCode, error)
	List(ctx context.Context, actor model.Actor, f repository.CodeFilter, page, limit int) ([]*model.RedemptionCode, int, error)
	Delete(ctx context.Context, actor model.Actor, id string) (*model.RedemptionCode, error)
	DeleteMany(ctx context.Context, actor model.Actor, ids []string) ([]*model.RedemptionCode, error)
	DeleteBatch(ctx context.Context, actor model.Actor, batchID string) ([]*model.RedemptionCode, error)
}

type codeUC struct {
	repo       repository.CodeRepository
	gen        *CodeGenerator
	defaultLen int
	maxQty     int
	log        *zerolog.Logger
}

// NewCodeUseCase accepts the deployment's default code length and batch
// quantity cap; zero or out-of-range values fall back to the model bounds.
func NewCodeUseCase(repo repository.CodeRepository, gen *CodeGenerator, defaultLength, maxQuantity int, logger *zerolog.Logger) *codeUC {
	if defaultLength < model.MinCodeLength || defaultLength > model.MaxCodeLength {
		defaultLength = model.DefaultCodeLength
	}
	if maxQuantity < 1 || maxQuantity > model.MaxBatchQuantity {
		maxQuantity = model.MaxBatchQuantity
	}
	l := logger.With().Str("component", "CodeUseCase").Logger()
	return &codeUC{repo: repo, gen: gen, defaultLen: defaultLength, maxQty: maxQuantity, log: &l}
}

// Generate draws quantity unique codes, groups them under a fresh batch id
// and bulk-persists them. The insert is unordered and tolerates duplicate-key
// rejections, so the result may carry fewer codes than requested; survivors
// always hold contiguous batch numbers 1..K.
func (uc *codeUC) Generate(ctx context.Context, actor model.Actor, quantity, length int, metadata map[string]string) (*model.GenerateResult, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if length == 0 {
		length = uc.defaultLen
	}
	if quantity < 1 || quantity > uc.maxQty {
		return nil, fmt.Errorf("quantity %d out of range 1..%d: %w", quantity, uc.maxQty, domain.ErrInvalidArgument)
	}
	if length < model.MinCodeLength || length > model.MaxCodeLength {
		return nil, fmt.Errorf("length %d out of range %d..%d: %w", length, model.MinCodeLength, model.MaxCodeLength, domain.ErrInvalidArgument)
	}

	codes, err := uc.gen.GenerateMany(ctx, quantity, length)
	if err != nil {
		return nil, err
	}

	batchID := NewBatchID()
	records := make([]*model.RedemptionCode, 0, len(codes))
	for i, c := range codes {
		rec, err := model.NewRedemptionCode(c, actor.ID, batchID, quantity, i+1, metadata)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	inserted, err := uc.repo.InsertBatch(ctx, repository.NoTX, records)
	if err != nil {
		return nil, err
	}
	metrics.AddCodesGenerated(len(inserted))
	if len(inserted) < quantity {
		uc.log.Warn().
			Str("batch_id", batchID).
			Int("requested", quantity).
			Int("inserted", len(inserted)).
			Msg("batch under-delivered")
	}
	return &model.GenerateResult{
		BatchID:           batchID,
		RequestedQuantity: quantity,
		InsertedCount:     len(inserted),
		Codes:             inserted,
	}, nil
}

// Redeem validates the code shape, then delegates the unredeemed->redeemed
// transition to the store's single conditional update. Unknown, already
// redeemed and inactive codes are all reported as ErrNotFound; they are
// equally terminal from the redeemer's perspective.
func (uc *codeUC) Redeem(ctx context.Context, actor model.Actor, code string) (*model.RedemptionCode, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if !model.ValidCode(code) {
		metrics.IncRedemption("invalid")
		return nil, fmt.Errorf("code must match ^[a-f0-9]{%d,%d}$: %w", model.MinCodeLength, model.MaxCodeLength, domain.ErrInvalidArgument)
	}
	rec, err := uc.repo.Redeem(ctx, repository.NoTX, code, actor.ID, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncRedemption("not_found")
		} else {
			metrics.IncRedemption("error")
		}
		return nil, err
	}
	metrics.IncRedemption("redeemed")
	uc.log.Info().Str("code_id", rec.ID).Str("batch_id", rec.BatchID).Msg("code redeemed")
	return rec, nil
}

// Get fetches one record. Records outside the actor's visible set are
// reported as ErrNotFound so their existence does not leak.
func (uc *codeUC) Get(ctx context.Context, actor model.Actor, id string) (*model.RedemptionCode, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	rec, err := uc.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(rec) {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// List applies ownership scoping by pushing the owner constraint into the
// store filter for restricted actors, then returns one page plus the total.
func (uc *codeUC) List(ctx context.Context, actor model.Actor, f repository.CodeFilter, page, limit int) ([]*model.RedemptionCode, int, error) {
	if actor.ID == "" {
		return nil, 0, domain.ErrUnauthorized
	}
	if !actor.Privileged() {
		f.OwnerID = actor.ID
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return uc.repo.List(ctx, repository.NoTX, f, (page-1)*limit, limit)
}

// Delete removes one record, scoped by ownership.
func (uc *codeUC) Delete(ctx context.Context, actor model.Actor, id string) (*model.RedemptionCode, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	deleted, err := uc.DeleteMany(ctx, actor, []string{id})
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return nil, domain.ErrNotFound
	}
	return deleted[0], nil
}

// DeleteMany removes the intersection of ids with the actor's visible set
// and reports the records actually deleted so callers can reconcile.
func (uc *codeUC) DeleteMany(ctx context.Context, actor model.Actor, ids []string) ([]*model.RedemptionCode, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if len(ids) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	owner := ""
	if !actor.Privileged() {
		owner = actor.ID
	}
	deleted, err := uc.repo.DeleteByIDs(ctx, repository.NoTX, ids, owner)
	if err != nil {
		return nil, err
	}
	metrics.AddCodesDeleted(len(deleted))
	return deleted, nil
}

// DeleteBatch removes every visible record of one batch.
func (uc *codeUC) DeleteBatch(ctx context.Context, actor model.Actor, batchID string) ([]*model.RedemptionCode, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if batchID == "" {
		return nil, domain.ErrInvalidArgument
	}
	owner := ""
	if !actor.Privileged() {
		owner = actor.ID
	}
	deleted, err := uc.repo.DeleteByBatch(ctx, repository.NoTX, batchID, owner)
	if err != nil {
		return nil, err
	}
	metrics.AddCodesDeleted(len(deleted))
	return deleted, nil
}
