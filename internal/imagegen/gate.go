package imagegen

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gated bounds the number of in-flight provider calls. Requests wait for a
// slot until their context ends.
type Gated struct {
	next Generator
	sem  *semaphore.Weighted
}

// NewGated wraps next with a gate of size limit (minimum 1).
func NewGated(next Generator, limit int) *Gated {
	if limit <= 0 {
		limit = 1
	}
	return &Gated{next: next, sem: semaphore.NewWeighted(int64(limit))}
}

func (g *Gated) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)
	return g.next.Generate(ctx, req)
}

var _ Generator = (*Gated)(nil)
