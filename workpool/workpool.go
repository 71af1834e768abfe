// Package workpool runs independent tasks on a bounded errgroup and hands
// back one outcome per task instead of failing fast.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome is the settled result of task Index.
type Outcome[T any] struct {
	Index int
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Run executes fn for indices 0..n-1 with at most limit tasks in flight and
// waits for all of them to settle. Task errors are recorded in the outcome
// and never cancel sibling tasks. Outcomes are returned in index order.
func Run[T any](ctx context.Context, limit, n int, fn func(ctx context.Context, i int) (T, error)) []Outcome[T] {
	if n <= 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}
	out := make([]Outcome[T], n)

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = Outcome[T]{Index: i, Err: err}
				return nil
			}
			v, err := fn(ctx, i)
			out[i] = Outcome[T]{Index: i, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait() // errors captured per outcome
	return out
}
