package model

import (
	"regexp"
	"time"

	"codevault/internal/domain"

	"github.com/google/uuid"
)

// CodeStatus is the lifecycle state of a redemption code. The only legal
// transition is unredeemed -> redeemed, performed at most once per code.
type CodeStatus string

const (
	CodeStatusUnredeemed CodeStatus = "unredeemed"
	CodeStatusRedeemed   CodeStatus = "redeemed"
)

const (
	MinCodeLength     = 8
	MaxCodeLength     = 20
	DefaultCodeLength = 12
	MaxBatchQuantity  = 10000
)

// codePattern matches a complete, well-formed code: lowercase hex, 8-20 chars.
var codePattern = regexp.MustCompile(`^[a-f0-9]{8,20}$`)

// ValidCode reports whether s is a syntactically valid redemption code.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// RedemptionCode is the central entity: one single-use code inside a batch.
// Code is globally unique, enforced by the store's unique constraint.
type RedemptionCode struct {
	ID          string
	Code        string
	Status      CodeStatus
	GeneratedBy string
	BatchID     string
	Quantity    int
	BatchNumber int
	IsActive    bool
	RedeemedAt  *time.Time
	RedeemedBy  *string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRedemptionCode builds an unredeemed record for a freshly drawn code.
// The (quantity, batchNumber) pair is validated at construction time, so a
// record never carries a position outside its own batch.
func NewRedemptionCode(code, generatedBy, batchID string, quantity, batchNumber int, metadata map[string]string) (*RedemptionCode, error) {
	if !ValidCode(code) {
		return nil, domain.ErrInvalidArgument
	}
	if generatedBy == "" || batchID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if quantity < 1 || quantity > MaxBatchQuantity {
		return nil, domain.ErrInvalidArgument
	}
	if batchNumber < 1 || batchNumber > quantity {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &RedemptionCode{
		ID:          uuid.NewString(),
		Code:        code,
		Status:      CodeStatusUnredeemed,
		GeneratedBy: generatedBy,
		BatchID:     batchID,
		Quantity:    quantity,
		BatchNumber: batchNumber,
		IsActive:    true,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Redeemed reports whether the code has been consumed. Status and the
// redemption pair (RedeemedAt, RedeemedBy) always agree; the store enforces
// this with a CHECK constraint.
func (c *RedemptionCode) Redeemed() bool {
	return c.Status == CodeStatusRedeemed
}

// GenerateResult summarizes one bulk generation request. InsertedCount may be
// lower than RequestedQuantity when candidates collided in-flight; callers
// must reconcile against Codes rather than assume exact delivery.
type GenerateResult struct {
	BatchID           string
	RequestedQuantity int
	InsertedCount     int
	Codes             []*RedemptionCode
}
