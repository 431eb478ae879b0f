// Package shared contains canonical type definitions shared across sluice.
package shared //nolint:revive // internal shared package is intentional

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is an opaque query, sort, projection, or pipeline stage document.
// It is handed to the driver verbatim and never interpreted by the builders.
type Document = bson.D

// FindOptions carries the cursor directives accumulated by a query.
// Nil pointers mean the directive was never applied.
type FindOptions struct {
	Sort       Document
	Projection Document
	Skip       *int64
	Limit      *int64
}

// CountOptions carries the cursor directives that bound a count.
type CountOptions struct {
	Skip  *int64
	Limit *int64
}

// WriteResult is the terminal shape of every write passthrough.
type WriteResult struct {
	Acknowledged  bool
	AffectedCount int64
	InsertedIDs   []any
	UpsertedID    any
}

// Cursor iterates over driver results.
type Cursor interface {
	// Next advances the cursor. Returns false when exhausted or on error.
	Next(ctx context.Context) bool

	// Decode unmarshals the current document into v.
	Decode(v any) error

	// Err returns the last error seen by the cursor.
	Err() error

	// Close releases the cursor.
	Close(ctx context.Context) error
}

// Collection defines the raw driver calls the builders issue.
// The mongo adapter and the in-memory mock satisfy this interface.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Find opens a cursor over documents matching filter.
	Find(ctx context.Context, filter any, opts FindOptions) (Cursor, error)

	// Aggregate runs the pipeline and returns a cursor over its output.
	Aggregate(ctx context.Context, pipeline []Document) (Cursor, error)

	// CountDocuments counts documents matching filter, bounded by opts.
	CountDocuments(ctx context.Context, filter any, opts CountOptions) (int64, error)

	// InsertOne inserts a single document.
	InsertOne(ctx context.Context, doc any) (*WriteResult, error)

	// InsertMany inserts documents in order.
	InsertMany(ctx context.Context, docs []any) (*WriteResult, error)

	// UpdateOne applies update to the first document matching filter.
	UpdateOne(ctx context.Context, filter, update any) (*WriteResult, error)

	// DeleteOne removes the first document matching filter.
	DeleteOne(ctx context.Context, filter any) (*WriteResult, error)

	// DeleteMany removes every document matching filter.
	DeleteMany(ctx context.Context, filter any) (*WriteResult, error)
}

// Database resolves named collections.
type Database interface {
	Name() string
	Collection(name string) Collection
}

// Client is a live connection to the data store.
type Client interface {
	// Database returns a handle for the named database.
	Database(name string) Database

	// Ping verifies the server is reachable.
	Ping(ctx context.Context) error

	// Disconnect releases the connection.
	Disconnect(ctx context.Context) error
}
