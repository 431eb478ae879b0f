// Package mockdb provides an in-memory document store for testing.
// It satisfies the driver interfaces in internal/shared closely enough to
// exercise query composition, including driver-side errors.
package mockdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/sluice/internal/shared"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var errNilDocument = errors.New("mockdb: document is nil")

// Config holds configurable failure behavior for a collection.
type Config struct {
	mu           sync.Mutex
	FindErr      error // Error to return from Find
	AggregateErr error // Error to return from Aggregate
	CountErr     error // Error to return from CountDocuments
	WriteErr     error // Error to return from every write
}

// SetFindErr sets the error to return from Find.
func (c *Config) SetFindErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FindErr = err
}

// SetAggregateErr sets the error to return from Aggregate.
func (c *Config) SetAggregateErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AggregateErr = err
}

// SetCountErr sets the error to return from CountDocuments.
func (c *Config) SetCountErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CountErr = err
}

// SetWriteErr sets the error to return from writes.
func (c *Config) SetWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteErr = err
}

// Reset clears all configured errors.
func (c *Config) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FindErr = nil
	c.AggregateErr = nil
	c.CountErr = nil
	c.WriteErr = nil
}

func (c *Config) get(pick func(*Config) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pick(c)
}

// Calls is a snapshot of driver calls received by a collection.
type Calls struct {
	Find      int64
	Aggregate int64
	Count     int64
	Write     int64
}

// Client is an in-memory client holding named databases.
type Client struct {
	mu          sync.Mutex
	dbs         map[string]*Database
	pingErr     error
	dialErr     error
	disconnects int
}

// NewClient creates an empty client.
func NewClient() *Client {
	return &Client{dbs: make(map[string]*Database)}
}

// Dial returns the client itself, or the configured dial error.
// Its signature matches the sluice Dialer.
func (c *Client) Dial(_ context.Context, _ string) (shared.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialErr != nil {
		return nil, c.dialErr
	}
	return c, nil
}

// SetDialErr sets the error returned by Dial.
func (c *Client) SetDialErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialErr = err
}

// SetPingErr sets the error returned by Ping.
func (c *Client) SetPingErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

// Database returns the named database, creating it on first use.
func (c *Client) Database(name string) shared.Database {
	return c.DB(name)
}

// DB returns the named database with its concrete type.
func (c *Client) DB(name string) *Database {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.dbs[name]
	if !ok {
		db = &Database{name: name, colls: make(map[string]*Collection)}
		c.dbs[name] = db
	}
	return db
}

// Ping returns the configured ping error.
func (c *Client) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

// Disconnect records the call. Data is kept so a client can be redialed.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

// Disconnects returns how many times Disconnect was called.
func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// Database is an in-memory database.
type Database struct {
	name  string
	mu    sync.Mutex
	colls map[string]*Collection
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// Collection returns the named collection, creating it on first use.
func (d *Database) Collection(name string) shared.Collection {
	return d.Coll(name)
}

// Coll returns the named collection with its concrete type.
func (d *Database) Coll(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.colls[name]
	if !ok {
		c = &Collection{name: name, config: &Config{}}
		d.colls[name] = c
	}
	return c
}

// Collection is an in-memory collection. Documents are kept in insertion
// order, which is the natural order returned by unsorted finds.
type Collection struct {
	name   string
	mu     sync.RWMutex
	docs   []bson.M
	config *Config

	finds      atomic.Int64
	aggregates atomic.Int64
	counts     atomic.Int64
	writes     atomic.Int64
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Config returns the failure configuration for this collection.
func (c *Collection) Config() *Config {
	return c.config
}

// Calls returns a snapshot of the driver calls received so far.
func (c *Collection) Calls() Calls {
	return Calls{
		Find:      c.finds.Load(),
		Aggregate: c.aggregates.Load(),
		Count:     c.counts.Load(),
		Write:     c.writes.Load(),
	}
}

// Seed inserts documents without counting them as driver calls.
func (c *Collection) Seed(docs ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range docs {
		if _, err := c.insertLocked(d); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// snapshot returns shallow copies of the documents matching filter.
func (c *Collection) snapshot(filter bson.D) ([]bson.M, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]bson.M, 0, len(c.docs))
	for _, d := range c.docs {
		ok, err := matches(d, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, copyDoc(d))
		}
	}
	return result, nil
}

// Find returns a cursor over matching documents with the directives applied.
func (c *Collection) Find(_ context.Context, filter any, opts shared.FindOptions) (shared.Cursor, error) {
	c.finds.Add(1)
	if err := c.config.get(func(cfg *Config) error { return cfg.FindErr }); err != nil {
		return nil, err
	}
	f, err := toD(filter)
	if err != nil {
		return nil, err
	}
	docs, err := c.snapshot(f)
	if err != nil {
		return nil, err
	}

	if opts.Sort != nil {
		spec, err := toD(opts.Sort)
		if err != nil {
			return nil, err
		}
		sortDocs(docs, spec)
	}
	docs, err = window(docs, opts.Skip, opts.Limit)
	if err != nil {
		return nil, err
	}
	if opts.Projection != nil {
		spec, err := toD(opts.Projection)
		if err != nil {
			return nil, err
		}
		docs = project(docs, spec)
	}
	return &Cursor{docs: docs, pos: -1}, nil
}

// CountDocuments counts matching documents after skip and limit.
func (c *Collection) CountDocuments(_ context.Context, filter any, opts shared.CountOptions) (int64, error) {
	c.counts.Add(1)
	if err := c.config.get(func(cfg *Config) error { return cfg.CountErr }); err != nil {
		return 0, err
	}
	f, err := toD(filter)
	if err != nil {
		return 0, err
	}
	docs, err := c.snapshot(f)
	if err != nil {
		return 0, err
	}
	docs, err = window(docs, opts.Skip, opts.Limit)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Aggregate runs the pipeline over every document in the collection.
func (c *Collection) Aggregate(_ context.Context, pipeline []bson.D) (shared.Cursor, error) {
	c.aggregates.Add(1)
	if err := c.config.get(func(cfg *Config) error { return cfg.AggregateErr }); err != nil {
		return nil, err
	}
	stages := make([]bson.D, len(pipeline))
	for i, s := range pipeline {
		d, err := toD(s)
		if err != nil {
			return nil, err
		}
		stages[i] = d
	}
	docs, err := c.snapshot(bson.D{})
	if err != nil {
		return nil, err
	}
	docs, err = runPipeline(docs, stages)
	if err != nil {
		return nil, err
	}
	return &Cursor{docs: docs, pos: -1}, nil
}

// InsertOne stores doc, assigning an ObjectID when _id is absent.
func (c *Collection) InsertOne(_ context.Context, doc any) (*shared.WriteResult, error) {
	c.writes.Add(1)
	if err := c.config.get(func(cfg *Config) error { return cfg.WriteErr }); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.insertLocked(doc)
	if err != nil {
		return nil, err
	}
	return &shared.WriteResult{Acknowledged: true, AffectedCount: 1, InsertedIDs: []any{id}}, nil
}

// InsertMany stores docs in order, stopping at the first failure.
func (c *Collection) InsertMany(_ context.Context, docs []any) (*shared.WriteResult, error) {
	c.writes.Add(1)
	if err := c.config.get(func(cfg *Config) error { return cfg.WriteErr }); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]any, 0, len(docs))
	for _, d := range docs {
		id, err := c.insertLocked(d)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return &shared.WriteResult{Acknowledged: true, AffectedCount: int64(len(ids)), InsertedIDs: ids}, nil
}

func (c *Collection) insertLocked(doc any) (any, error) {
	m, err := toM(doc)
	if err != nil {
		return nil, err
	}
	id, ok := m["_id"]
	if !ok || id == nil {
		id = bson.NewObjectID()
		m["_id"] = id
	}
	for _, existing := range c.docs {
		if equal(existing["_id"], id) {
			return nil, fmt.Errorf("mockdb: E11000 duplicate key error collection: %s _id: %v", c.name, id)
		}
	}
	c.docs = append(c.docs, m)
	return id, nil
}

// UpdateOne applies update operators to the first matching document.
func (c *Collection) UpdateOne(_ context.Context, filter, update any) (*shared.WriteResult, error) {
	c.writes.Add(1)
	if err := c.config.get(func(cfg *Config) error { return cfg.WriteErr }); err != nil {
		return nil, err
	}
	f, err := toD(filter)
	if err != nil {
		return nil, err
	}
	u, err := toD(update)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.docs {
		ok, err := matches(d, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		next := copyDoc(d)
		if err := applyUpdate(next, u); err != nil {
			return nil, err
		}
		c.docs[i] = next
		return &shared.WriteResult{Acknowledged: true, AffectedCount: 1}, nil
	}
	return &shared.WriteResult{Acknowledged: true}, nil
}

// DeleteOne removes the first matching document.
func (c *Collection) DeleteOne(_ context.Context, filter any) (*shared.WriteResult, error) {
	return c.remove(filter, 1)
}

// DeleteMany removes every matching document.
func (c *Collection) DeleteMany(_ context.Context, filter any) (*shared.WriteResult, error) {
	return c.remove(filter, -1)
}

func (c *Collection) remove(filter any, limit int) (*shared.WriteResult, error) {
	c.writes.Add(1)
	if err := c.config.get(func(cfg *Config) error { return cfg.WriteErr }); err != nil {
		return nil, err
	}
	f, err := toD(filter)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := make([]bson.M, 0, len(c.docs))
	var removed int64
	for _, d := range c.docs {
		if limit < 0 || removed < int64(limit) {
			ok, err := matches(d, f)
			if err != nil {
				return nil, err
			}
			if ok {
				removed++
				continue
			}
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return &shared.WriteResult{Acknowledged: true, AffectedCount: removed}, nil
}

// Cursor iterates over a materialized result set.
type Cursor struct {
	docs   []bson.M
	pos    int
	closed bool
}

// Next advances to the next document.
func (c *Cursor) Next(_ context.Context) bool {
	if c.closed {
		return false
	}
	c.pos++
	return c.pos < len(c.docs)
}

// Decode unmarshals the current document into v.
func (c *Cursor) Decode(v any) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return errors.New("mockdb: no current document")
	}
	data, err := bson.Marshal(c.docs[c.pos])
	if err != nil {
		return err
	}
	if raw, ok := v.(*bson.Raw); ok {
		*raw = data
		return nil
	}
	return bson.Unmarshal(data, v)
}

// Err always returns nil; failures surface from Find and Aggregate.
func (*Cursor) Err() error {
	return nil
}

// Close marks the cursor exhausted.
func (c *Cursor) Close(_ context.Context) error {
	c.closed = true
	return nil
}

// Ensure the mock types implement the driver interfaces.
var (
	_ shared.Client     = (*Client)(nil)
	_ shared.Database   = (*Database)(nil)
	_ shared.Collection = (*Collection)(nil)
	_ shared.Cursor     = (*Cursor)(nil)
)
