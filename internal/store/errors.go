package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every store. Callers match them with errors.Is.
var (
	// ErrNotFound: the requested row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate: a unique constraint was violated.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity: a value could not be stored or decoded.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed: begin or commit failed.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInternal covers unexpected database failures.
	ErrInternal = errors.New("internal store error")

	// ErrSchemaNotFound indicates that no schema document is stored under the name.
	ErrSchemaNotFound = fmt.Errorf("%w: schema document", ErrNotFound)
)

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError records which entity and operation failed.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Entity, e.Operation, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the entity and operation that produced it.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
