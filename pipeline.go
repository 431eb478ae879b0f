package sluice

import (
	"context"

	"github.com/zoobzio/sluice/internal/shared"
)

// Pipeline is an immutable, unexecuted aggregation plan.
// Stages are driver-native documents passed through verbatim and in order;
// the builder never inspects or rewrites them. Limit and Append return new
// pipelines with their own stage slice.
type Pipeline[T any] struct {
	scope  scope
	source Source[shared.Collection]
	stages []Document
	decode decodeFunc[T]
}

func newPipeline[T any](sc scope, coll Source[shared.Collection], stages []Document) *Pipeline[T] {
	return &Pipeline[T]{
		scope:  sc,
		source: coll,
		stages: append([]Document(nil), stages...),
		decode: decodeInto[T],
	}
}

// Stages returns a copy of the accumulated stages.
func (p *Pipeline[T]) Stages() []Document {
	return append([]Document(nil), p.stages...)
}

// Append returns a pipeline with stages added after the existing ones.
func (p *Pipeline[T]) Append(stages ...Document) *Pipeline[T] {
	next := make([]Document, 0, len(p.stages)+len(stages))
	next = append(next, p.stages...)
	next = append(next, stages...)
	return &Pipeline[T]{
		scope:  p.scope,
		source: p.source,
		stages: next,
		decode: p.decode,
	}
}

// Limit returns a pipeline with a {$limit: n} stage appended.
func (p *Pipeline[T]) Limit(n int64) *Pipeline[T] {
	return p.Append(Document{{Key: "$limit", Value: n}})
}

// MapPipeline returns a pipeline whose results are fn applied to the results
// of p. The mapping happens client-side after the aggregation runs.
func MapPipeline[T, U any](p *Pipeline[T], fn func(T) (U, error)) *Pipeline[U] {
	decode := p.decode
	return &Pipeline[U]{
		scope:  p.scope,
		source: p.source,
		stages: p.stages,
		decode: func(ctx context.Context, cur Cursor) (U, error) {
			v, err := decode(ctx, cur)
			if err != nil {
				var zero U
				return zero, err
			}
			return fn(v)
		},
	}
}

// Source returns the aggregation results as a sequence source.
// Each attach runs the aggregation again.
func (p *Pipeline[T]) Source() Source[T] {
	return aggregateSource(p.source, p.stages, p.decode)
}

func aggregateSource[T any](coll Source[shared.Collection], stages []Document, decode decodeFunc[T]) Source[T] {
	return FlatMap(coll, func(c shared.Collection) Source[T] {
		return Generate(func(ctx context.Context, yield func(T) error) error {
			cur, err := c.Aggregate(ctx, stages)
			if err != nil {
				return err
			}
			defer cur.Close(ctx)

			for cur.Next(ctx) {
				v, err := decode(ctx, cur)
				if err != nil {
					return err
				}
				if err := yield(v); err != nil {
					return err
				}
			}
			return cur.Err()
		})
	})
}

// All returns every aggregation result in driver order.
func (p *Pipeline[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	err := observe(ctx, p.scope, TerminalAll, func() (int64, error) {
		var err error
		items, err = materializeAll(ctx, p.Source())
		return int64(len(items)), err
	})
	return items, err
}

// First returns the first result, or ok == false when there is none.
func (p *Pipeline[T]) First(ctx context.Context) (T, bool, error) {
	var (
		item T
		ok   bool
	)
	err := observe(ctx, p.scope, TerminalFirst, func() (int64, error) {
		var err error
		item, ok, err = materializeFirst(ctx, p.Limit(1).Source())
		return found(ok), err
	})
	return item, ok, err
}

// One returns the only result, or ok == false when there is none.
// Fails with ErrMultipleResults when the aggregation yields two or more.
func (p *Pipeline[T]) One(ctx context.Context) (T, bool, error) {
	var (
		item T
		ok   bool
	)
	err := observe(ctx, p.scope, TerminalOne, func() (int64, error) {
		var err error
		item, ok, err = materializeOne(ctx, p.Source())
		return found(ok), err
	})
	return item, ok, err
}

// countResult is the document produced by a trailing $count stage.
type countResult struct {
	Count int64 `bson:"count"`
}

// Count returns the number of results the pipeline would yield.
func (p *Pipeline[T]) Count(ctx context.Context) (int64, error) {
	stages := make([]Document, 0, len(p.stages)+1)
	stages = append(stages, p.stages...)
	stages = append(stages, Document{{Key: "$count", Value: "count"}})
	src := aggregateSource(p.source, stages, decodeInto[countResult])

	var n int64
	err := observe(ctx, p.scope, TerminalCount, func() (int64, error) {
		res, ok, err := materializeOne(ctx, src)
		if err != nil || !ok {
			return 0, err
		}
		n = res.Count
		return n, nil
	})
	return n, err
}
