// Package sluice provides lazy, immutable query and aggregation builders over
// a document store driver.
// Builders only accumulate a plan; the driver is contacted when a terminal
// (All, First, One, Count) is called, and again on every such call.
package sluice

import "github.com/zoobzio/sluice/internal/shared"

// Semantic errors (re-exported from internal/shared).
var (
	ErrNoConnection     = shared.ErrNoConnection
	ErrAlreadyConnected = shared.ErrAlreadyConnected
	ErrConnect          = shared.ErrConnect
	ErrMultipleResults  = shared.ErrMultipleResults
	ErrConversion       = shared.ErrConversion
	ErrEmptySource      = shared.ErrEmptySource
	ErrMultipleValues   = shared.ErrMultipleValues
	ErrDecode           = shared.ErrDecode
)

// ConversionError is re-exported from internal/shared for the public API.
type ConversionError = shared.ConversionError

// Document is re-exported from internal/shared for the public API.
type Document = shared.Document

// FindOptions is re-exported from internal/shared for the public API.
type FindOptions = shared.FindOptions

// CountOptions is re-exported from internal/shared for the public API.
type CountOptions = shared.CountOptions

// WriteResult is re-exported from internal/shared for the public API.
type WriteResult = shared.WriteResult

// Cursor is re-exported from internal/shared for the public API.
type Cursor = shared.Cursor

// RawCollection is the untyped driver collection, re-exported from internal/shared.
type RawCollection = shared.Collection

// Database is re-exported from internal/shared for the public API.
type Database = shared.Database

// Client is re-exported from internal/shared for the public API.
type Client = shared.Client
