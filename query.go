package sluice

import (
	"context"
	"fmt"

	"github.com/zoobzio/sluice/internal/shared"
)

// cursorSpec is the driver cursor state a query accumulates.
type cursorSpec struct {
	coll   shared.Collection
	filter any
	opts   shared.FindOptions
}

// decodeFunc turns the current cursor document into an element.
type decodeFunc[T any] func(ctx context.Context, cur Cursor) (T, error)

// Query is an immutable, unexecuted find plan over a collection.
// Sort, Skip, Limit, Project and Map return new queries; the receiver is
// never modified. The driver is only contacted by a terminal: All, First,
// One or Count. Every terminal call re-issues the find.
type Query[T any] struct {
	scope  scope
	source Source[cursorSpec]
	decode decodeFunc[T]
}

func newQuery[T any](sc scope, coll Source[shared.Collection], filter any) *Query[T] {
	if filter == nil {
		filter = Document{}
	}
	return &Query[T]{
		scope:  sc,
		source: FlatMapSingle(coll, func(c shared.Collection) Source[cursorSpec] {
			return Just(cursorSpec{coll: c, filter: filter})
		}),
		decode: decodeInto[T],
	}
}

// decodeInto decodes the current document into a fresh T and runs AfterLoad.
func decodeInto[T any](ctx context.Context, cur Cursor) (T, error) {
	var v T
	if err := cur.Decode(&v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := callAfterLoad(ctx, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// shape derives a query whose cursor has apply run over it.
func (q *Query[T]) shape(apply func(cursorSpec) cursorSpec) *Query[T] {
	return &Query[T]{
		scope:  q.scope,
		source: FlatMapSingle(q.source, func(spec cursorSpec) Source[cursorSpec] {
			return Just(apply(spec))
		}),
		decode: q.decode,
	}
}

// Sort orders results by spec, e.g. Document{{Key: "name", Value: 1}}.
func (q *Query[T]) Sort(spec Document) *Query[T] {
	return q.shape(func(c cursorSpec) cursorSpec {
		c.opts.Sort = spec
		return c
	})
}

// Limit bounds the number of results. Negative values are rejected by the driver.
func (q *Query[T]) Limit(n int64) *Query[T] {
	return q.shape(func(c cursorSpec) cursorSpec {
		c.opts.Limit = &n
		return c
	})
}

// Skip drops the first n results. Negative values are rejected by the driver.
func (q *Query[T]) Skip(n int64) *Query[T] {
	return q.shape(func(c cursorSpec) cursorSpec {
		c.opts.Skip = &n
		return c
	})
}

// bounded caps the cursor at one element without masking an invalid limit.
func (q *Query[T]) bounded() *Query[T] {
	return q.shape(func(c cursorSpec) cursorSpec {
		if c.opts.Limit != nil && *c.opts.Limit < 0 {
			return c
		}
		one := int64(1)
		c.opts.Limit = &one
		return c
	})
}

// Project restricts the fields the driver returns.
func (q *Query[T]) Project(spec Document) *Query[T] {
	return q.shape(func(c cursorSpec) cursorSpec {
		c.opts.Projection = spec
		return c
	})
}

// Map returns a query whose elements are fn applied to the elements of q.
// fn runs once per element during materialization; its errors fail the
// materialization. Directives applied to the result still shape the cursor.
func Map[T, U any](q *Query[T], fn func(T) (U, error)) *Query[U] {
	decode := q.decode
	return &Query[U]{
		scope:  q.scope,
		source: q.source,
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

// Source returns the query's elements as a sequence source.
// Each attach opens a new driver cursor.
func (q *Query[T]) Source() Source[T] {
	decode := q.decode
	return FlatMap(q.source, func(spec cursorSpec) Source[T] {
		return Generate(func(ctx context.Context, yield func(T) error) error {
			cur, err := spec.coll.Find(ctx, spec.filter, spec.opts)
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

// All returns every element in driver order.
// An empty result is an empty slice, not an error.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	err := observe(ctx, q.scope, TerminalAll, func() (int64, error) {
		var err error
		items, err = materializeAll(ctx, q.Source())
		return int64(len(items)), err
	})
	return items, err
}

// First returns the first element, or ok == false when there is none.
// It never fails because of cardinality. A valid caller limit is narrowed to
// one; a negative one is kept so the driver rejects it as All would.
func (q *Query[T]) First(ctx context.Context) (T, bool, error) {
	var (
		item T
		ok   bool
	)
	err := observe(ctx, q.scope, TerminalFirst, func() (int64, error) {
		var err error
		item, ok, err = materializeFirst(ctx, q.bounded().Source())
		return found(ok), err
	})
	return item, ok, err
}

// One returns the only element, or ok == false when there is none.
// Fails with ErrMultipleResults when two or more elements exist. No implicit
// limit is applied, so the true cardinality is observed.
func (q *Query[T]) One(ctx context.Context) (T, bool, error) {
	var (
		item T
		ok   bool
	)
	err := observe(ctx, q.scope, TerminalOne, func() (int64, error) {
		var err error
		item, ok, err = materializeOne(ctx, q.Source())
		return found(ok), err
	})
	return item, ok, err
}

// Count returns the number of documents the current cursor would yield,
// honoring any Skip and Limit already applied.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	src := FlatMapSingle(q.source, func(spec cursorSpec) Source[int64] {
		return FromFunc(func(ctx context.Context) (int64, error) {
			return spec.coll.CountDocuments(ctx, spec.filter, shared.CountOptions{
				Skip:  spec.opts.Skip,
				Limit: spec.opts.Limit,
			})
		})
	})

	var n int64
	err := observe(ctx, q.scope, TerminalCount, func() (int64, error) {
		var err error
		n, err = Await(ctx, src)
		return n, err
	})
	return n, err
}
