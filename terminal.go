package sluice

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Terminal evaluators shared by Query and Pipeline. Each one attaches to the
// source exactly once per call.

func materializeAll[T any](ctx context.Context, src Source[T]) ([]T, error) {
	return Collect(ctx, src)
}

// materializeFirst expects a source already bounded to at most one element.
func materializeFirst[T any](ctx context.Context, bounded Source[T]) (T, bool, error) {
	items, err := Collect(ctx, bounded)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if len(items) == 0 {
		var zero T
		return zero, false, nil
	}
	return items[0], true, nil
}

// materializeOne must receive an unbounded source: an implicit limit would
// hide the multi-result case. Production stops at the second element.
func materializeOne[T any](ctx context.Context, src Source[T]) (T, bool, error) {
	var (
		item T
		n    int
	)
	err := src.drive(ctx, func(v T) error {
		n++
		if n > 1 {
			return ErrMultipleResults
		}
		item = v
		return nil
	})
	if err != nil || n == 0 {
		var zero T
		return zero, false, err
	}
	return item, true, nil
}

// scope identifies what a terminal reads: the collection and the Go type its
// documents decode into.
type scope struct {
	collection string
	record     string
}

// observe wraps a terminal with started/completed/failed signals.
// fn reports the number of elements it produced.
func observe(ctx context.Context, sc scope, terminal string, fn func() (int64, error)) error {
	start := time.Now()
	capitan.Emit(ctx, MaterializeStarted,
		FieldCollection.Field(sc.collection),
		FieldRecordType.Field(sc.record),
		FieldTerminal.Field(terminal),
	)

	n, err := fn()
	if err != nil {
		capitan.Emit(ctx, MaterializeFailed,
			FieldCollection.Field(sc.collection),
			FieldRecordType.Field(sc.record),
			FieldTerminal.Field(terminal),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return err
	}

	capitan.Emit(ctx, MaterializeCompleted,
		FieldCollection.Field(sc.collection),
		FieldRecordType.Field(sc.record),
		FieldTerminal.Field(terminal),
		FieldCount.Field(n),
		FieldDuration.Field(time.Since(start)),
	)
	return nil
}

func found(ok bool) int64 {
	if ok {
		return 1
	}
	return 0
}
