// Package sieveerr defines the typed error kinds used throughout this
// repository and the UserLog sink interface callers provide
// for per-script diagnostic logging.
package sieveerr

import "fmt"

// Location identifies a position within a named script, used by
// diagnostics that can be attributed to source text.
type Location struct {
	ScriptName string
	Line       int32
	Column     int
}

func (l Location) String() string {
	if l.ScriptName == "" {
		return fmt.Sprintf("line:%d, column:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s line:%d, column:%d", l.ScriptName, l.Line, l.Column)
}

// NotFoundError reports that a named script could not be located by the
// Script storage collaborator.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sieve: script not found: %s", e.Name)
}

// NotValidError reports a parse or validation failure. Diagnostics carry a
// script location; a single script can accumulate more than one.
type NotValidError struct {
	Location Location
	Message  string
}

func (e *NotValidError) Error() string {
	return fmt.Sprintf("sieve: not valid: %s - %s", e.Location, e.Message)
}

// NewNotValidError constructs a NotValidError at the given position.
func NewNotValidError(scriptName string, line int32, column int, message string) *NotValidError {
	return &NotValidError{Location: Location{ScriptName: scriptName, Line: line, Column: column}, Message: message}
}

// BinCorruptError reports that a compiled binary failed its magic/version/
// length checks, or references an extension unknown to this instance.
type BinCorruptError struct {
	Message string
}

func (e *BinCorruptError) Error() string {
	return fmt.Sprintf("sieve: binary corrupt: %s", e.Message)
}

// ResourceError reports that a CPU, redirect, or action-count limit was
// tripped during execution.
type ResourceError struct {
	Limit   string
	Message string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("sieve: resource limit %q exceeded: %s", e.Limit, e.Message)
}

// TempFailureError reports a retryable failure from a downstream
// collaborator (storage, SMTP).
type TempFailureError struct {
	Message string
	Cause   error
}

func (e *TempFailureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sieve: temporary failure: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("sieve: temporary failure: %s", e.Message)
}

func (e *TempFailureError) Unwrap() error {
	return e.Cause
}

// KeepFailedError reports that implicit keep itself failed: the message
// could not be preserved. This is the most severe error kind — the caller
// has no safe fallback left.
type KeepFailedError struct {
	Message string
	Cause   error
}

func (e *KeepFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sieve: keep failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("sieve: keep failed: %s", e.Message)
}

func (e *KeepFailedError) Unwrap() error {
	return e.Cause
}

// InternalError is an assertion-class error. Callers must treat it as a
// TempFailureError — surfaced to the embedder with an internal log entry —
// rather than exposing internals to the message sender.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("sieve: internal error: %s", e.Message)
}

// AsTempFailure converts an InternalError into the TempFailureError it
// presents as to callers outside this package.
func (e *InternalError) AsTempFailure() *TempFailureError {
	return &TempFailureError{Message: "internal error", Cause: e}
}

// UserLog is the per-script diagnostic sink an embedder provides (the
// sieve_user_log knob modeled as a collaborator rather than a concrete
// file writer, since CLI/log-file plumbing is out of scope here).
type UserLog interface {
	Warn(code, message string)
	Info(code, message string)
}

// NopUserLog discards everything. Useful as a default when the embedder
// does not care about per-script diagnostics.
type NopUserLog struct{}

func (NopUserLog) Warn(string, string) {}
func (NopUserLog) Info(string, string) {}
