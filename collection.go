package sluice

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/sentinel"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collection is the entry point for building queries and aggregations over a
// named collection whose documents decode into T.
// The driver handle is resolved once, when the collection is created; the
// collection itself is never consumed and may produce any number of builders.
type Collection[T any] struct {
	name     string
	source   Source[RawCollection]
	meta     sentinel.Metadata
	isStruct bool
	record   string
	metaOnce sync.Once
}

// NewCollection resolves the named collection from session.
// Returns ErrNoConnection if the session is not connected.
func NewCollection[T any](session *Session, name string) (*Collection[T], error) {
	db, err := session.Database()
	if err != nil {
		return nil, err
	}
	return &Collection[T]{
		name:   name,
		source: Just(db.Collection(name)),
	}, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Metadata returns the sentinel metadata for T. The boolean is false when T
// is not a struct, as with Collection[bson.M].
func (c *Collection[T]) Metadata() (sentinel.Metadata, bool) {
	c.inspect()
	return c.meta, c.isStruct
}

// RecordType returns the name carried by FieldRecordType on this
// collection's signals: package.Type for structs, the Go type otherwise.
func (c *Collection[T]) RecordType() string {
	c.inspect()
	return c.record
}

func (c *Collection[T]) inspect() {
	c.metaOnce.Do(func() {
		typ := reflect.TypeFor[T]()
		if typ.Kind() != reflect.Struct {
			c.record = typ.String()
			return
		}
		c.meta = sentinel.Inspect[T]()
		c.isStruct = true
		c.record = c.meta.PackageName + "." + c.meta.TypeName
	})
}

func (c *Collection[T]) scoped() scope {
	return scope{collection: c.name, record: c.RecordType()}
}

// Query returns a builder over documents matching filter.
// A nil filter matches every document.
func (c *Collection[T]) Query(filter any) *Query[T] {
	return newQuery[T](c.scoped(), c.source, filter)
}

// QueryOne returns the first document matching filter, or ok == false.
func (c *Collection[T]) QueryOne(ctx context.Context, filter any) (T, bool, error) {
	return c.Query(filter).First(ctx)
}

// QueryByID returns the document whose _id equals id, or ok == false.
// id may be a bson.ObjectID, its hex string form, or a uuid.UUID. Any other
// value, or an unparsable string, fails with a *ConversionError.
func (c *Collection[T]) QueryByID(ctx context.Context, id any) (T, bool, error) {
	native, err := NativeID(id)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return c.QueryOne(ctx, Document{{Key: "_id", Value: native}})
}

// Exists reports whether any document matches filter.
func (c *Collection[T]) Exists(ctx context.Context, filter any) (bool, error) {
	var ok bool
	err := observe(ctx, c.scoped(), TerminalExists, func() (int64, error) {
		var err error
		_, ok, err = materializeFirst(ctx, newQuery[bson.Raw](c.scoped(), c.source, filter).Limit(1).Source())
		return found(ok), err
	})
	return ok, err
}

// CountMatching counts documents matching filter, independent of any cursor.
func (c *Collection[T]) CountMatching(ctx context.Context, filter any) (int64, error) {
	if filter == nil {
		filter = Document{}
	}
	src := FlatMapSingle(c.source, func(coll RawCollection) Source[int64] {
		return FromFunc(func(ctx context.Context) (int64, error) {
			return coll.CountDocuments(ctx, filter, CountOptions{})
		})
	})

	var n int64
	err := observe(ctx, c.scoped(), TerminalCountMatching, func() (int64, error) {
		var err error
		n, err = Await(ctx, src)
		return n, err
	})
	return n, err
}

// Aggregate returns a pipeline seeded with stages, decoding results as bson.M.
func (c *Collection[T]) Aggregate(stages ...Document) *Pipeline[bson.M] {
	return newPipeline[bson.M](c.scoped(), c.source, stages)
}

// AggregateAs returns a pipeline over c whose results decode into R.
func AggregateAs[R, T any](c *Collection[T], stages ...Document) *Pipeline[R] {
	return newPipeline[R](c.scoped(), c.source, stages)
}

// binarySubtypeUUID is the BSON binary subtype for RFC 4122 UUIDs.
const binarySubtypeUUID byte = 0x04

// NativeID converts id to the store's identifier type.
func NativeID(id any) (any, error) {
	switch v := id.(type) {
	case bson.ObjectID:
		return v, nil
	case string:
		oid, err := bson.ObjectIDFromHex(v)
		if err != nil {
			return nil, &ConversionError{Value: id, Cause: err}
		}
		return oid, nil
	case uuid.UUID:
		return bson.Binary{Subtype: binarySubtypeUUID, Data: v[:]}, nil
	default:
		return nil, &ConversionError{Value: id}
	}
}

// --- Write passthroughs ---

// write runs a single-shot driver call with write signals.
func (c *Collection[T]) write(ctx context.Context, op string, fn func(context.Context, RawCollection) (*WriteResult, error)) (*WriteResult, error) {
	start := time.Now()
	res, err := Await(ctx, FlatMapSingle(c.source, func(coll RawCollection) Source[*WriteResult] {
		return FromFunc(func(ctx context.Context) (*WriteResult, error) {
			return fn(ctx, coll)
		})
	}))
	if err != nil {
		capitan.Emit(ctx, WriteFailed,
			FieldCollection.Field(c.name),
			FieldRecordType.Field(c.RecordType()),
			FieldOperation.Field(op),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return nil, err
	}

	capitan.Emit(ctx, WriteCompleted,
		FieldCollection.Field(c.name),
		FieldRecordType.Field(c.RecordType()),
		FieldOperation.Field(op),
		FieldCount.Field(res.AffectedCount),
		FieldDuration.Field(time.Since(start)),
	)
	return res, nil
}

// InsertOne inserts doc, running BeforeSave and AfterSave hooks.
func (c *Collection[T]) InsertOne(ctx context.Context, doc *T) (*WriteResult, error) {
	if err := callBeforeSave(ctx, doc); err != nil {
		return nil, err
	}
	res, err := c.write(ctx, "insert_one", func(ctx context.Context, coll RawCollection) (*WriteResult, error) {
		return coll.InsertOne(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	if err := callAfterSave(ctx, doc); err != nil {
		return res, err
	}
	return res, nil
}

// InsertMany inserts docs in order, running BeforeSave and AfterSave hooks on each.
func (c *Collection[T]) InsertMany(ctx context.Context, docs []*T) (*WriteResult, error) {
	raw := make([]any, len(docs))
	for i, d := range docs {
		if err := callBeforeSave(ctx, d); err != nil {
			return nil, err
		}
		raw[i] = d
	}
	res, err := c.write(ctx, "insert_many", func(ctx context.Context, coll RawCollection) (*WriteResult, error) {
		return coll.InsertMany(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if err := callAfterSave(ctx, d); err != nil {
			return res, err
		}
	}
	return res, nil
}

// UpdateOne applies update to the first document matching filter.
func (c *Collection[T]) UpdateOne(ctx context.Context, filter, update any) (*WriteResult, error) {
	return c.write(ctx, "update_one", func(ctx context.Context, coll RawCollection) (*WriteResult, error) {
		return coll.UpdateOne(ctx, filter, update)
	})
}

// DeleteOne removes the first document matching filter.
func (c *Collection[T]) DeleteOne(ctx context.Context, filter any) (*WriteResult, error) {
	return c.delete(ctx, "delete_one", func(ctx context.Context, coll RawCollection) (*WriteResult, error) {
		return coll.DeleteOne(ctx, filter)
	})
}

// DeleteMany removes every document matching filter.
func (c *Collection[T]) DeleteMany(ctx context.Context, filter any) (*WriteResult, error) {
	return c.delete(ctx, "delete_many", func(ctx context.Context, coll RawCollection) (*WriteResult, error) {
		return coll.DeleteMany(ctx, filter)
	})
}

func (c *Collection[T]) delete(ctx context.Context, op string, fn func(context.Context, RawCollection) (*WriteResult, error)) (*WriteResult, error) {
	if err := callBeforeDelete[T](ctx); err != nil {
		return nil, err
	}
	res, err := c.write(ctx, op, fn)
	if err != nil {
		return nil, err
	}
	if err := callAfterDelete[T](ctx); err != nil {
		return res, err
	}
	return res, nil
}
