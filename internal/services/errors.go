package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// OracleError wraps a failed call to an external generation capability.
type OracleError struct {
	Op  string // "title", "hint" or "judge"
	Err error
}

func (e *OracleError) Error() string { return fmt.Sprintf("%s oracle: %v", e.Op, e.Err) }

func (e *OracleError) Unwrap() error { return e.Err }
