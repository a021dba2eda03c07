package worker

import "context"

type indexedJob[T, R any] struct {
	index int
	item  T
	fn    func(ctx context.Context, index int, item T) R
}

func (j *indexedJob[T, R]) Execute(ctx context.Context) Result {
	return &indexedResult[R]{index: j.index, value: j.fn(ctx, j.index, j.item)}
}

type indexedResult[R any] struct {
	index int
	value R
}

func (r *indexedResult[R]) GetError() error {
	return nil
}

// Map runs fn over items on a bounded pool and returns the outputs in input
// order. Completion order is irrelevant to callers. If ctx is cancelled,
// unprocessed slots keep their zero value and ctx.Err() is returned.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, index int, item T) R) ([]R, error) {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out, nil
	}
	if workers > len(items) {
		workers = len(items)
	}

	pool := NewPoolContext(ctx, workers)
	pool.Start()

	for i, item := range items {
		if !pool.Submit(&indexedJob[T, R]{index: i, item: item, fn: fn}) {
			break
		}
	}

	for _, res := range pool.Wait() {
		r := res.(*indexedResult[R])
		out[r.index] = r.value
	}

	return out, ctx.Err()
}
