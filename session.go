package sluice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Dialer opens a client connection for uri.
type Dialer func(ctx context.Context, uri string) (Client, error)

// Session owns one connection to the data store.
// It starts disconnected; Connect installs a database handle and Disconnect
// tears it down. Collections resolve their handle from the session once, at
// construction, and fail with ErrNoConnection if there is none.
type Session struct {
	mu         sync.RWMutex
	client     Client
	db         Database
	dialer     Dialer
	clientOpts []*options.ClientOptions
	logger     *zap.SugaredLogger
}

// NewSession creates a disconnected session.
func NewSession(opts ...Option) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionFromClient creates a session already connected through an
// existing MongoDB client.
func NewSessionFromClient(client *mongo.Client, database string, opts ...Option) *Session {
	s := NewSession(opts...)
	c := wrapMongoClient(client)
	s.client = c
	s.db = c.Database(database)
	return s
}

// Connector returns a single-value source that dials uri, verifies the
// connection and installs the named database on the session. Every attach
// dials again; attaching while connected fails with ErrAlreadyConnected
// without dialing.
func (s *Session) Connector(uri, database string) Source[Database] {
	return FromFunc(func(ctx context.Context) (Database, error) {
		if s.Connected() {
			return nil, ErrAlreadyConnected
		}

		start := time.Now()
		if s.logger != nil {
			s.logger.Debugw("Connecting", "database", database)
		}

		dial := s.dialer
		if dial == nil {
			dial = DialMongo(s.clientOpts...)
		}

		client, err := dial(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnect, err)
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("%w: %w", ErrConnect, err)
		}
		db := client.Database(database)

		s.mu.Lock()
		if s.client != nil {
			s.mu.Unlock()
			_ = client.Disconnect(ctx)
			return nil, ErrAlreadyConnected
		}
		s.client = client
		s.db = db
		s.mu.Unlock()

		if s.logger != nil {
			s.logger.Infow("Connected",
				"database", database,
				"duration", time.Since(start),
			)
		}
		capitan.Emit(ctx, SessionConnected,
			FieldDatabase.Field(database),
			FieldDuration.Field(time.Since(start)),
		)
		return db, nil
	})
}

// Connect dials uri and installs the named database on the session.
func (s *Session) Connect(ctx context.Context, uri, database string) error {
	_, err := Await(ctx, s.Connector(uri, database))
	return err
}

// Disconnect releases the connection. It is a no-op when not connected.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	client, db := s.client, s.db
	s.client = nil
	s.db = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	err := client.Disconnect(ctx)
	if s.logger != nil {
		if err != nil {
			s.logger.Warnw("Disconnect failed", "database", db.Name(), "error", err)
		} else {
			s.logger.Infow("Disconnected", "database", db.Name())
		}
	}
	capitan.Emit(ctx, SessionDisconnected, FieldDatabase.Field(db.Name()))
	return err
}

// Connected reports whether the session holds a live connection.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Database returns the connected database handle.
// Returns ErrNoConnection when the session is not connected.
func (s *Session) Database() (Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNoConnection
	}
	return s.db, nil
}
