package sluice

import "context"

// BeforeSave is called before a document is inserted. Return an error to abort the write.
type BeforeSave interface {
	BeforeSave(ctx context.Context) error
}

// AfterSave is called after a document has been inserted.
// Return an error to signal a post-save invariant failure.
type AfterSave interface {
	AfterSave(ctx context.Context) error
}

// AfterLoad is called on every element decoded during materialization.
// An error fails the materialization.
type AfterLoad interface {
	AfterLoad(ctx context.Context) error
}

// BeforeDelete is called before a delete passthrough runs.
// Invoked on a zero-value T (no loaded state). Return an error to abort the operation.
type BeforeDelete interface {
	BeforeDelete(ctx context.Context) error
}

// AfterDelete is called after a delete passthrough succeeds.
// Invoked on a zero-value T (no loaded state).
type AfterDelete interface {
	AfterDelete(ctx context.Context) error
}

func callBeforeSave[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(BeforeSave); ok {
		return h.BeforeSave(ctx)
	}
	return nil
}

func callAfterSave[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(AfterSave); ok {
		return h.AfterSave(ctx)
	}
	return nil
}

func callAfterLoad[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(AfterLoad); ok {
		return h.AfterLoad(ctx)
	}
	return nil
}

func callBeforeDelete[T any](ctx context.Context) error {
	var zero T
	if h, ok := any(&zero).(BeforeDelete); ok {
		return h.BeforeDelete(ctx)
	}
	return nil
}

func callAfterDelete[T any](ctx context.Context) error {
	var zero T
	if h, ok := any(&zero).(AfterDelete); ok {
		return h.AfterDelete(ctx)
	}
	return nil
}
