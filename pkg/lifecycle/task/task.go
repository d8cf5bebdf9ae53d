// Package task runs a fixed set of concurrent operations and joins on all of
// them, keeping every success and failure as an explicit result.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Result is the settled outcome of one task.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Func is the body of a task. i is the task's index in the fan-out.
type Func[T any] func(ctx context.Context, i int) (T, error)

// Join starts n tasks and waits for all of them to settle. Results are
// returned in index order. A panicking task settles with an error instead of
// crashing the caller. Join does not cancel siblings on failure.
func Join[T any](ctx context.Context, n int, fn Func[T]) []Result[T] {
	results := make([]Result[T], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result[T]{Index: i, Err: fmt.Errorf("task %d panicked: %v", i, r)}
				}
			}()
			v, err := fn(ctx, i)
			results[i] = Result[T]{Index: i, Value: v, Err: err}
		}(i)
	}
	wg.Wait()
	return results
}

// Map is Join over a slice of inputs.
func Map[In, Out any](ctx context.Context, in []In, fn func(ctx context.Context, item In) (Out, error)) []Result[Out] {
	return Join(ctx, len(in), func(ctx context.Context, i int) (Out, error) {
		return fn(ctx, in[i])
	})
}

// FirstError returns the error of the lowest-indexed failed task, or nil.
func FirstError[T any](results []Result[T]) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Errors joins every failure into one error, or returns nil.
func Errors[T any](results []Result[T]) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Values returns the values of the successful tasks in index order.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}
