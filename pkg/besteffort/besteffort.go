// Package besteffort runs fire-and-forget side effects whose failure must be
// visible in logs and metrics but never fail the caller.
package besteffort

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FailureRecorder counts swallowed failures.
type FailureRecorder interface {
	RecordBestEffortFailure(ctx context.Context, operation string)
}

// Result carries the outcome of a best-effort call.
type Result[T any] struct {
	Operation string
	Value     T
	Err       error
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Run executes fn, logging and counting any error or panic instead of
// returning it to the caller's control flow.
func Run[T any](ctx context.Context, log *zap.Logger, recorder FailureRecorder, operation string, fn func(context.Context) (T, error)) (res Result[T]) {
	res.Operation = operation
	defer func() {
		if recovered := recover(); recovered != nil {
			res.Err = fmt.Errorf("panic: %v", recovered)
			report(ctx, log, recorder, operation, res.Err)
		}
	}()

	value, err := fn(ctx)
	res.Value = value
	res.Err = err
	if err != nil {
		report(ctx, log, recorder, operation, err)
	}
	return res
}

// Do is Run for side effects with no value.
func Do(ctx context.Context, log *zap.Logger, recorder FailureRecorder, operation string, fn func(context.Context) error) Result[struct{}] {
	return Run(ctx, log, recorder, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

func report(ctx context.Context, log *zap.Logger, recorder FailureRecorder, operation string, err error) {
	if log != nil {
		log.Warn("best-effort operation failed", zap.String("operation", operation), zap.Error(err))
	}
	if recorder != nil {
		recorder.RecordBestEffortFailure(ctx, operation)
	}
}
