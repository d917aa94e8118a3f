package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"codevault/internal/domain"
	"codevault/internal/domain/model"
	"codevault/internal/domain/ports/repository"
	red "codevault/internal/infra/redis"

	"github.com/go-chi/chi/v5"
)

type generateRequest struct {
	Quantity int               `json:"quantity"`
	Length   int               `json:"length"`
	Metadata map[string]string `json:"metadata"`
}

type codeSummary struct {
	ID          string            `json:"id"`
	Code        string            `json:"code"`
	Status      model.CodeStatus  `json:"status"`
	GeneratedBy string            `json:"generated_by"`
	BatchID     string            `json:"batch_id"`
	Quantity    int               `json:"quantity"`
	BatchNumber int               `json:"batch_number"`
	IsActive    bool              `json:"is_active"`
	RedeemedAt  *time.Time        `json:"redeemed_at,omitempty"`
	RedeemedBy  *string           `json:"redeemed_by,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func toSummary(c *model.RedemptionCode) codeSummary {
	return codeSummary{
		ID:          c.ID,
		Code:        c.Code,
		Status:      c.Status,
		GeneratedBy: c.GeneratedBy,
		BatchID:     c.BatchID,
		Quantity:    c.Quantity,
		BatchNumber: c.BatchNumber,
		IsActive:    c.IsActive,
		RedeemedAt:  c.RedeemedAt,
		RedeemedBy:  c.RedeemedBy,
		Metadata:    c.Metadata,
		CreatedAt:   c.CreatedAt,
	}
}

func toSummaries(cs []*model.RedemptionCode) []codeSummary {
	out := make([]codeSummary, 0, len(cs))
	for _, c := range cs {
		out = append(out, toSummary(c))
	}
	return out
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.codeUC.Generate(r.Context(), actor, req.Quantity, req.Length, req.Metadata)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		BatchID           string        `json:"batch_id"`
		RequestedQuantity int           `json:"requested_quantity"`
		InsertedCount     int           `json:"inserted_count"`
		Codes             []codeSummary `json:"codes"`
	}{res.BatchID, res.RequestedQuantity, res.InsertedCount, toSummaries(res.Codes)})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), red.ActorRedeemKey(actor.ID), s.redeemLimit, s.redeemWindow)
		if err != nil {
			// limiter outage must not block redemptions; the store stays
			// the correctness authority
			s.log.Warn().Err(err).Msg("redeem rate limiter unavailable")
		} else if !allowed {
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
			return
		}
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rec, err := s.codeUC.Redeem(r.Context(), actor, req.Code)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID         string     `json:"id"`
		Code       string     `json:"code"`
		BatchID    string     `json:"batch_id"`
		RedeemedAt *time.Time `json:"redeemed_at"`
	}{rec.ID, rec.Code, rec.BatchID, rec.RedeemedAt})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	var f repository.CodeFilter
	if v := q.Get("status"); v != "" {
		st := model.CodeStatus(v)
		if st != model.CodeStatusUnredeemed && st != model.CodeStatusRedeemed {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
		f.Status = &st
	}
	f.BatchID = q.Get("batch_id")
	f.OwnerID = q.Get("owner_id")
	f.Search = q.Get("search")
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, total, err := s.codeUC.List(r.Context(), actor, f, page, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []codeSummary `json:"items"`
		Total int           `json:"total"`
	}{toSummaries(items), total})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	rec, err := s.codeUC.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(rec))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	rec, err := s.codeUC.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(rec))
}

// handleDeleteMany accepts either an explicit id set or a whole batch id.
func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		IDs     []string `json:"ids"`
		BatchID string   `json:"batch_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var (
		deleted []*model.RedemptionCode
		err     error
	)
	switch {
	case req.BatchID != "" && len(req.IDs) > 0:
		http.Error(w, "Provide either ids or batch_id, not both", http.StatusBadRequest)
		return
	case req.BatchID != "":
		deleted, err = s.codeUC.DeleteBatch(r.Context(), actor, req.BatchID)
	case len(req.IDs) > 0:
		deleted, err = s.codeUC.DeleteMany(r.Context(), actor, req.IDs)
	default:
		http.Error(w, "Provide ids or batch_id", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Deleted []codeSummary `json:"deleted"`
	}{toSummaries(deleted)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !actor.Privileged() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	totals, err := s.statsUC.Totals(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	batches, err := s.statsUC.Batches(r.Context(), 50)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	type batchOut struct {
		BatchID     string    `json:"batch_id"`
		GeneratedBy string    `json:"generated_by"`
		Requested   int       `json:"requested"`
		Inserted    int       `json:"inserted"`
		Redeemed    int       `json:"redeemed"`
		EarliestAt  time.Time `json:"earliest_at"`
	}
	bs := make([]batchOut, 0, len(batches))
	for _, b := range batches {
		bs = append(bs, batchOut{b.BatchID, b.GeneratedBy, b.Requested, b.Inserted, b.Redeemed, b.EarliestAt})
	}
	writeJSON(w, http.StatusOK, struct {
		Totals  map[model.CodeStatus]int `json:"totals"`
		Batches []batchOut               `json:"batches"`
	}{totals, bs})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain sentinels to HTTP statuses.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "Too many attempts", http.StatusTooManyRequests)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
