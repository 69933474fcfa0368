// Package core defines the fundamental types and errors for Corvid.
package core

import "errors"

// Core errors that can occur across the system
var (
	// Storage errors
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrMigrationFailed = errors.New("migration failed")

	// Agent errors
	ErrAgentNotFound = errors.New("agent not found")
	ErrLoopDisabled  = errors.New("agent loop is disabled")
	ErrTickInFlight  = errors.New("tick already in flight")

	// Corpus errors
	ErrIndexNotFound    = errors.New("index not found")
	ErrDocumentNotFound = errors.New("document not found")

	// Oracle errors
	ErrOracleUnavailable = errors.New("oracle service unavailable")
	ErrEmptyResponse     = errors.New("empty oracle response")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
