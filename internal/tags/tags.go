// Package tags supplies the content tags that parametrize quiz tasks.
package tags

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/p-n-ai/pai-planner/internal/task"
)

// MaxTags caps the tags a quiz carries.
const MaxTags = 10

// ErrNoTags is returned when a facet has no tags in the bank.
var ErrNoTags = errors.New("no tags available for facet")

// Source returns a bounded random sample of tags for a facet.
type Source interface {
	Tags(ctx context.Context, facetID string, limit int) ([]string, error)
}

// Bank lists every tag available for a facet.
type Bank interface {
	AvailableTags(ctx context.Context, facetID string) ([]string, error)
}

// Sampler draws random samples from a Bank.
type Sampler struct {
	bank Bank
	rng  *rand.Rand
	mu   sync.Mutex
}

// NewSampler creates a Sampler over bank. A nil rng is seeded from the clock.
func NewSampler(bank Bank, rng *rand.Rand) *Sampler {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>32|1))
	}
	return &Sampler{bank: bank, rng: rng}
}

// Tags returns up to limit distinct tags in random order. limit is clamped to
// [1, MaxTags].
func (s *Sampler) Tags(ctx context.Context, facetID string, limit int) ([]string, error) {
	if limit <= 0 || limit > MaxTags {
		limit = MaxTags
	}

	available, err := s.bank.AvailableTags(ctx, facetID)
	if err != nil {
		return nil, fmt.Errorf("%w: tag bank: %v", task.ErrUnavailable, err)
	}
	pool := dedupe(available)
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTags, facetID)
	}

	s.mu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()

	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// MemoryBank is a fixed in-memory Bank.
type MemoryBank map[string][]string

func (b MemoryBank) AvailableTags(_ context.Context, facetID string) ([]string, error) {
	return append([]string(nil), b[facetID]...), nil
}
