package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// BindError reports a parameter that could not be bound for a query:
// a required parameter was missing from the caller's arguments and had
// no declared default.
type BindError struct {
	Query string
	Param string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: missing required parameter %q", e.Query, e.Param)
}

// DecodeError reports a row returned by the store that does not match
// the declared row shape.
type DecodeError struct {
	Column string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("decode row: %s", e.Reason)
	}
	return fmt.Sprintf("decode column %q: %s", e.Column, e.Reason)
}

// QueryError reports a query the store rejected or failed to execute.
// Message carries the store's own error text.
type QueryError struct {
	Query   string
	Status  int
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s failed (status %d): %s", e.Query, e.Status, e.Message)
}

// InsertError reports a write the store rejected, or a batch that
// failed shape validation before any write was issued.
type InsertError struct {
	Table   string
	Status  int
	Message string
	Err     error
}

func (e *InsertError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("insert into %s: %s: %v", e.Table, e.Message, e.Err)
	}
	return fmt.Sprintf("insert into %s: %s", e.Table, e.Message)
}

func (e *InsertError) Unwrap() error { return e.Err }
