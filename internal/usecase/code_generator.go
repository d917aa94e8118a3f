package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"

	"codevault/internal/domain"
	"codevault/internal/domain/model"
	"codevault/internal/domain/ports/repository"
	"codevault/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultMaxAttempts bounds the retry loop for a single code slot.
	DefaultMaxAttempts = 100
	// DefaultGroupSize caps candidates checked against the store per
	// round-trip during bulk generation.
	DefaultGroupSize = 100
)

// CodeGenerator draws random fixed-length codes and guarantees, by checking
// against the store, that each returned code was absent at check time. The
// store's unique constraint at insert time remains the authoritative
// guarantee; two candidates from the same group can still collide in-flight.
type CodeGenerator struct {
	repo        repository.CodeRepository
	maxAttempts int
	groupSize   int
}

func NewCodeGenerator(repo repository.CodeRepository, maxAttempts, groupSize int) *CodeGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	return &CodeGenerator{repo: repo, maxAttempts: maxAttempts, groupSize: groupSize}
}

// randomHex renders length lowercase hex characters from crypto/rand.
func randomHex(length int) (string, error) {
	buf := make([]byte, (length+1)/2)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:length], nil
}

// GenerateOne returns a code of the given length that was not present in the
// store at check time. Fails with domain.ErrGenerationExhausted after the
// attempt budget is spent, never looping indefinitely.
func (g *CodeGenerator) GenerateOne(ctx context.Context, length int) (string, error) {
	if length < model.MinCodeLength || length > model.MaxCodeLength {
		return "", domain.ErrInvalidArgument
	}
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate, err := randomHex(length)
		if err != nil {
			return "", err
		}
		existing, err := g.repo.FilterExisting(ctx, repository.NoTX, []string{candidate})
		if err != nil {
			return "", err
		}
		if _, taken := existing[candidate]; !taken {
			return candidate, nil
		}
		metrics.IncGenerationCollision()
	}
	return "", domain.ErrGenerationExhausted
}

// GenerateMany produces up to count codes, working in bounded-size groups to
// limit store round-trips and peak memory. A slot whose attempt budget runs
// out is dropped rather than failing the whole batch or being retried with a
// fresh budget, so the returned slice may be shorter than count.
func (g *CodeGenerator) GenerateMany(ctx context.Context, count, length int) ([]string, error) {
	if count < 1 || length < model.MinCodeLength || length > model.MaxCodeLength {
		return nil, domain.ErrInvalidArgument
	}
	out := make([]string, 0, count)
	for len(out) < count {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		want := count - len(out)
		if want > g.groupSize {
			want = g.groupSize
		}
		group, err := g.generateGroup(ctx, want, length)
		if err != nil {
			return out, err
		}
		out = append(out, group...)
		if len(group) < want {
			// the remaining slots spent their attempt budget; stop here
			// and let the insert step report the honest count
			break
		}
	}
	return out, nil
}

// generateGroup fills up to want slots. Candidates are drawn for all open
// slots at once and checked against the store in a single round-trip; taken
// candidates burn one attempt for their slot.
func (g *CodeGenerator) generateGroup(ctx context.Context, want, length int) ([]string, error) {
	accepted := make([]string, 0, want)
	for attempt := 0; attempt < g.maxAttempts && len(accepted) < want; attempt++ {
		open := want - len(accepted)
		candidates := make([]string, 0, open)
		for i := 0; i < open; i++ {
			c, err := randomHex(length)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, c)
		}
		existing, err := g.repo.FilterExisting(ctx, repository.NoTX, candidates)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if _, taken := existing[c]; taken {
				metrics.IncGenerationCollision()
				continue
			}
			accepted = append(accepted, c)
		}
	}
	// Exhausted slots are dropped; the insert step reports the honest count.
	return accepted, nil
}

// NewBatchID returns the identifier grouping one generation request. ULIDs
// carry a wall-clock component plus random bytes; uniqueness is
// probabilistic, which is acceptable since a batch id collision only causes
// grouping ambiguity, never data corruption.
func NewBatchID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
