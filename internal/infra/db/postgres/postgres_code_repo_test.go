//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"codevault/internal/domain"
	"codevault/internal/domain/model"
	"codevault/internal/domain/ports/repository"
)

func mustBatch(t *testing.T, owner, batchID string, codes ...string) []*model.RedemptionCode {
	t.Helper()
	out := make([]*model.RedemptionCode, 0, len(codes))
	for i, c := range codes {
		rec, err := model.NewRedemptionCode(c, owner, batchID, len(codes), i+1, nil)
		if err != nil {
			t.Fatalf("build record %q: %v", c, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestCodeRepo_InsertBatch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewCodeRepo(testPool)

	t.Run("inserts a full batch", func(t *testing.T) {
		cleanup(t)
		recs := mustBatch(t, "issuer-1", "batch-a", "aaaaaaaa0001", "aaaaaaaa0002", "aaaaaaaa0003")
		inserted, err := repo.InsertBatch(ctx, nil, recs)
		if err != nil {
			t.Fatalf("InsertBatch: %v", err)
		}
		if len(inserted) != 3 {
			t.Fatalf("expected 3 inserted, got %d", len(inserted))
		}
		for i, rec := range inserted {
			if rec.BatchNumber != i+1 {
				t.Errorf("record %d has batch number %d", i, rec.BatchNumber)
			}
		}
	})

	t.Run("drops duplicates and renumbers survivors", func(t *testing.T) {
		cleanup(t)
		first := mustBatch(t, "issuer-1", "batch-a", "bbbbbbbb0001")
		if _, err := repo.InsertBatch(ctx, nil, first); err != nil {
			t.Fatalf("seed insert: %v", err)
		}

		// Second batch collides on its middle code.
		second := mustBatch(t, "issuer-2", "batch-b", "cccccccc0001", "bbbbbbbb0001", "cccccccc0003")
		inserted, err := repo.InsertBatch(ctx, nil, second)
		if err != nil {
			t.Fatalf("InsertBatch with duplicate: %v", err)
		}
		if len(inserted) != 2 {
			t.Fatalf("expected 2 survivors, got %d", len(inserted))
		}
		for i, rec := range inserted {
			if rec.BatchNumber != i+1 {
				t.Errorf("survivor %d has batch number %d, want %d", i, rec.BatchNumber, i+1)
			}
		}

		// Exactly one row should carry the contested code, owned by issuer-1.
		var owner string
		err = testPool.QueryRow(ctx, "SELECT generated_by FROM redemption_codes WHERE code = $1", "bbbbbbbb0001").Scan(&owner)
		if err != nil {
			t.Fatalf("direct query: %v", err)
		}
		if owner != "issuer-1" {
			t.Errorf("duplicate insert overwrote owner: got %q", owner)
		}
	})
}

func TestCodeRepo_FilterExisting_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewCodeRepo(testPool)
	cleanup(t)

	recs := mustBatch(t, "issuer-1", "batch-a", "dddddddd0001", "dddddddd0002")
	if _, err := repo.InsertBatch(ctx, nil, recs); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	taken, err := repo.FilterExisting(ctx, nil, []string{"dddddddd0001", "dddddddd0002", "dddddddd0003"})
	if err != nil {
		t.Fatalf("FilterExisting: %v", err)
	}
	if len(taken) != 2 {
		t.Fatalf("expected 2 taken codes, got %d", len(taken))
	}
	if _, ok := taken["dddddddd0003"]; ok {
		t.Error("unseen code reported as taken")
	}
}

func TestCodeRepo_Redeem_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewCodeRepo(testPool)

	t.Run("redeems exactly once", func(t *testing.T) {
		cleanup(t)
		recs := mustBatch(t, "issuer-1", "batch-a", "eeeeeeee0001")
		if _, err := repo.InsertBatch(ctx, nil, recs); err != nil {
			t.Fatalf("seed insert: %v", err)
		}

		rec, err := repo.Redeem(ctx, nil, "eeeeeeee0001", "user-1", time.Now())
		if err != nil {
			t.Fatalf("first Redeem: %v", err)
		}
		if rec.Status != model.CodeStatusRedeemed || rec.RedeemedAt == nil || rec.RedeemedBy == nil || *rec.RedeemedBy != "user-1" {
			t.Fatalf("redeemed record not filled in: %+v", rec)
		}

		if _, err := repo.Redeem(ctx, nil, "eeeeeeee0001", "user-2", time.Now()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("second Redeem: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.Redeem(ctx, nil, "ffffffff0001", "user-1", time.Now()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent redeem yields one winner", func(t *testing.T) {
		cleanup(t)
		recs := mustBatch(t, "issuer-1", "batch-a", "abababab0001")
		if _, err := repo.InsertBatch(ctx, nil, recs); err != nil {
			t.Fatalf("seed insert: %v", err)
		}

		const workers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, misses := 0, 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := repo.Redeem(ctx, nil, "abababab0001", fmt.Sprintf("user-%d", n), time.Now())
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrNotFound):
					misses++
				default:
					t.Errorf("unexpected redeem error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 || misses != workers-1 {
			t.Fatalf("expected 1 winner and %d misses, got %d/%d", workers-1, wins, misses)
		}
	})
}

func TestCodeRepo_List_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewCodeRepo(testPool)
	cleanup(t)

	batchA := mustBatch(t, "issuer-1", "batch-a", "11111111aaaa", "11111111bbbb")
	batchB := mustBatch(t, "issuer-2", "batch-b", "22222222aaaa")
	if _, err := repo.InsertBatch(ctx, nil, batchA); err != nil {
		t.Fatalf("seed batch a: %v", err)
	}
	if _, err := repo.InsertBatch(ctx, nil, batchB); err != nil {
		t.Fatalf("seed batch b: %v", err)
	}
	if _, err := repo.Redeem(ctx, nil, "11111111aaaa", "user-1", time.Now()); err != nil {
		t.Fatalf("seed redeem: %v", err)
	}

	t.Run("filters by owner", func(t *testing.T) {
		items, total, err := repo.List(ctx, nil, repository.CodeFilter{OwnerID: "issuer-1"}, 0, 10)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 2 || len(items) != 2 {
			t.Fatalf("expected 2 rows for issuer-1, got total=%d len=%d", total, len(items))
		}
	})

	t.Run("filters by status", func(t *testing.T) {
		st := model.CodeStatusRedeemed
		items, total, err := repo.List(ctx, nil, repository.CodeFilter{Status: &st}, 0, 10)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 1 || len(items) != 1 || items[0].Code != "11111111aaaa" {
			t.Fatalf("unexpected redeemed listing: total=%d", total)
		}
	})

	t.Run("filters by substring", func(t *testing.T) {
		_, total, err := repo.List(ctx, nil, repository.CodeFilter{Search: "2222"}, 0, 10)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 1 {
			t.Fatalf("expected 1 match for substring, got %d", total)
		}
	})

	t.Run("paginates", func(t *testing.T) {
		items, total, err := repo.List(ctx, nil, repository.CodeFilter{}, 1, 1)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 3 || len(items) != 1 {
			t.Fatalf("expected total 3 with 1 page row, got total=%d len=%d", total, len(items))
		}
	})
}

func TestCodeRepo_Delete_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewCodeRepo(testPool)

	t.Run("deletes by id with owner scope", func(t *testing.T) {
		cleanup(t)
		recs := mustBatch(t, "issuer-1", "batch-a", "33333333aaaa")
		inserted, err := repo.InsertBatch(ctx, nil, recs)
		if err != nil {
			t.Fatalf("seed insert: %v", err)
		}

		// Wrong owner deletes nothing.
		deleted, err := repo.DeleteByIDs(ctx, nil, []string{inserted[0].ID}, "issuer-2")
		if err != nil {
			t.Fatalf("DeleteByIDs scoped: %v", err)
		}
		if len(deleted) != 0 {
			t.Fatalf("scoped delete removed %d rows", len(deleted))
		}

		// Unscoped (admin) delete removes the row.
		deleted, err = repo.DeleteByIDs(ctx, nil, []string{inserted[0].ID}, "")
		if err != nil {
			t.Fatalf("DeleteByIDs: %v", err)
		}
		if len(deleted) != 1 || deleted[0].Code != "33333333aaaa" {
			t.Fatalf("expected 1 deleted row, got %d", len(deleted))
		}
	})

	t.Run("deletes a whole batch", func(t *testing.T) {
		cleanup(t)
		recs := mustBatch(t, "issuer-1", "batch-a", "44444444aaaa", "44444444bbbb")
		if _, err := repo.InsertBatch(ctx, nil, recs); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
		deleted, err := repo.DeleteByBatch(ctx, nil, "batch-a", "issuer-1")
		if err != nil {
			t.Fatalf("DeleteByBatch: %v", err)
		}
		if len(deleted) != 2 {
			t.Fatalf("expected 2 deleted rows, got %d", len(deleted))
		}
	})
}

func TestCodeRepo_Stats_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewCodeRepo(testPool)
	cleanup(t)

	recs := mustBatch(t, "issuer-1", "batch-a", "55555555aaaa", "55555555bbbb", "55555555cccc")
	if _, err := repo.InsertBatch(ctx, nil, recs); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	if _, err := repo.Redeem(ctx, nil, "55555555bbbb", "user-1", time.Now()); err != nil {
		t.Fatalf("seed redeem: %v", err)
	}

	counts, err := repo.CountByStatus(ctx, nil)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.CodeStatusUnredeemed] != 2 || counts[model.CodeStatusRedeemed] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	sums, err := repo.BatchSummaries(ctx, nil, 10)
	if err != nil {
		t.Fatalf("BatchSummaries: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("expected 1 batch summary, got %d", len(sums))
	}
	if sums[0].BatchID != "batch-a" || sums[0].Inserted != 3 || sums[0].Redeemed != 1 || sums[0].Requested != 3 {
		t.Fatalf("unexpected summary: %+v", sums[0])
	}
}
