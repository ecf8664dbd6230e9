package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is wrapped by every structural schema problem.
	ErrSchema = errors.New("schema error")

	// ErrCycle marks a definition graph that references itself.
	ErrCycle = errors.New("circular reference")

	// ErrDuplicateName is returned when a conversion or validator name is
	// registered twice.
	ErrDuplicateName = errors.New("name already registered")
)

// Error describes a problem found at a specific path of a schema document,
// for example "tasks/SCRAPER/SCRAPE/urls".
type Error struct {
	Path  string
	Msg   string
	cycle bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema error at '%s': %s", e.Path, e.Msg)
}

// Unwrap lets errors.Is match ErrSchema and, for cycles, ErrCycle.
func (e *Error) Unwrap() []error {
	if e.cycle {
		return []error{ErrSchema, ErrCycle}
	}
	return []error{ErrSchema}
}

func schemaErr(path, format string, args ...any) error {
	return &Error{Path: path, Msg: fmt.Sprintf(format, args...)}
}
