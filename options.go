package sluice

import (
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Option configures a Session.
type Option func(*Session)

// WithDialer sets the function used to open connections.
// If not specified, the MongoDB driver is used.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithLogger sets a logger for connection lifecycle messages.
// A nil logger keeps the session silent.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithClientOptions adds MongoDB client options applied after the URI.
// Ignored when a custom dialer is set.
func WithClientOptions(opts ...*options.ClientOptions) Option {
	return func(s *Session) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}
