package sluice

import "context"

// Arity classifies how many values a Source produces per attach.
type Arity int

const (
	// ArityOne sources produce exactly one value or an error.
	ArityOne Arity = iota

	// ArityMany sources produce zero or more values before completing.
	ArityMany
)

// String returns the arity name.
func (a Arity) String() string {
	if a == ArityMany {
		return "many"
	}
	return "one"
}

// Source is a lazy, re-runnable producer of values.
// Nothing runs until a consumer attaches, and every attach runs production
// again from scratch. Sources are values; deriving a new Source never changes
// the one it was derived from.
type Source[T any] struct {
	arity Arity
	run   func(ctx context.Context, yield func(T) error) error
}

// Observer receives the outcome of an attach. Any callback may be nil.
// OnComplete is always called exactly once, after every other callback.
type Observer[T any] struct {
	OnValue    func(T)
	OnError    func(error)
	OnComplete func()
}

// Arity reports whether the source is single-value or a sequence.
func (s Source[T]) Arity() Arity {
	return s.arity
}

// Attach starts production and reports values, at most one error, and a
// final completion to obs.
func (s Source[T]) Attach(ctx context.Context, obs Observer[T]) {
	err := s.drive(ctx, func(v T) error {
		if obs.OnValue != nil {
			obs.OnValue(v)
		}
		return nil
	})
	if err != nil && obs.OnError != nil {
		obs.OnError(err)
	}
	if obs.OnComplete != nil {
		obs.OnComplete()
	}
}

// drive runs production once, enforcing the arity contract.
// A non-nil error from yield stops production and is returned.
func (s Source[T]) drive(ctx context.Context, yield func(T) error) error {
	if s.run == nil {
		if s.arity == ArityOne {
			return ErrEmptySource
		}
		return nil
	}
	if s.arity == ArityMany {
		return s.run(ctx, yield)
	}

	n := 0
	err := s.run(ctx, func(v T) error {
		n++
		if n > 1 {
			return ErrMultipleValues
		}
		return yield(v)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEmptySource
	}
	return nil
}

// --- Constructors ---

// Just returns a single-value source that produces v on every attach.
func Just[T any](v T) Source[T] {
	return Source[T]{
		arity: ArityOne,
		run: func(_ context.Context, yield func(T) error) error {
			return yield(v)
		},
	}
}

// Fail returns a single-value source that fails with err on every attach.
func Fail[T any](err error) Source[T] {
	return Source[T]{
		arity: ArityOne,
		run: func(_ context.Context, _ func(T) error) error {
			return err
		},
	}
}

// FromFunc returns a single-value source that calls fn on every attach.
func FromFunc[T any](fn func(ctx context.Context) (T, error)) Source[T] {
	return Source[T]{
		arity: ArityOne,
		run: func(ctx context.Context, yield func(T) error) error {
			v, err := fn(ctx)
			if err != nil {
				return err
			}
			return yield(v)
		},
	}
}

// FromSlice returns a sequence source over items.
func FromSlice[T any](items []T) Source[T] {
	return Source[T]{
		arity: ArityMany,
		run: func(_ context.Context, yield func(T) error) error {
			for _, v := range items {
				if err := yield(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Generate returns a sequence source driven by fn.
// fn must pass every yield error back to its caller.
func Generate[T any](fn func(ctx context.Context, yield func(T) error) error) Source[T] {
	return Source[T]{arity: ArityMany, run: fn}
}

// --- Combinators ---

// FlatMapSingle feeds each value of src to f and forwards the nested source's
// values, error and completion as its own. If src fails, f is never invoked.
// The result keeps the arity of src, so f must return single-value sources
// when src is single-value.
func FlatMapSingle[T, U any](src Source[T], f func(T) Source[U]) Source[U] {
	return flatMap(src, f, src.arity)
}

// FlatMap is FlatMapSingle for nested sequences: the result is always a
// sequence regardless of the arity of src.
func FlatMap[T, U any](src Source[T], f func(T) Source[U]) Source[U] {
	return flatMap(src, f, ArityMany)
}

func flatMap[T, U any](src Source[T], f func(T) Source[U], arity Arity) Source[U] {
	return Source[U]{
		arity: arity,
		run: func(ctx context.Context, yield func(U) error) error {
			return src.drive(ctx, func(v T) error {
				return f(v).drive(ctx, yield)
			})
		},
	}
}

// MapValues transforms each value of src with fn, preserving arity.
// An error from fn fails the source.
func MapValues[T, U any](src Source[T], fn func(T) (U, error)) Source[U] {
	return FlatMapSingle(src, func(v T) Source[U] {
		out, err := fn(v)
		if err != nil {
			return Fail[U](err)
		}
		return Just(out)
	})
}

// --- Consumers ---

// Collect attaches to src and returns every value in production order.
// An empty sequence yields an empty, non-nil slice.
func Collect[T any](ctx context.Context, src Source[T]) ([]T, error) {
	result := make([]T, 0)
	err := src.drive(ctx, func(v T) error {
		result = append(result, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Await attaches to src and returns its only value.
// Returns ErrEmptySource or ErrMultipleValues when src does not produce
// exactly one value.
func Await[T any](ctx context.Context, src Source[T]) (T, error) {
	var (
		result T
		n      int
	)
	err := src.drive(ctx, func(v T) error {
		n++
		if n > 1 {
			return ErrMultipleValues
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if n == 0 {
		var zero T
		return zero, ErrEmptySource
	}
	return result, nil
}
