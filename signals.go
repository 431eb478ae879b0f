package sluice

import "github.com/zoobzio/capitan"

// Signals for materialization, write and session lifecycle events.
var (
	MaterializeStarted   = capitan.NewSignal("sluice.materialize.started", "Materialization initiated")
	MaterializeCompleted = capitan.NewSignal("sluice.materialize.completed", "Materialization succeeded")
	MaterializeFailed    = capitan.NewSignal("sluice.materialize.failed", "Materialization failed")
	WriteCompleted       = capitan.NewSignal("sluice.write.completed", "Write succeeded")
	WriteFailed          = capitan.NewSignal("sluice.write.failed", "Write failed")
	SessionConnected     = capitan.NewSignal("sluice.session.connected", "Session connected")
	SessionDisconnected  = capitan.NewSignal("sluice.session.disconnected", "Session disconnected")
)

// Field keys for event extraction.
var (
	FieldCollection = capitan.NewStringKey("collection")
	FieldRecordType = capitan.NewStringKey("record_type")
	FieldTerminal   = capitan.NewStringKey("terminal")
	FieldOperation  = capitan.NewStringKey("operation")
	FieldDatabase   = capitan.NewStringKey("database")
	FieldDuration   = capitan.NewDurationKey("duration")
	FieldError      = capitan.NewErrorKey("error")
	FieldCount      = capitan.NewInt64Key("count")
)

// Terminal names carried by FieldTerminal.
const (
	TerminalAll           = "all"
	TerminalFirst         = "first"
	TerminalOne           = "one"
	TerminalCount         = "count"
	TerminalCountMatching = "count_matching"
	TerminalExists        = "exists"
)
