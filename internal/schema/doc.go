// Package schema loads task schemas and validates task payloads against them.
//
// A schema document has two graphs. "definitions" holds reusable field
// definitions and named groups of fields; "tasks" maps a service name to its
// tasks and each task to a group of fields (inline or via "$ref"). Field rules
// use upper-case keys: REQUIRED, DEFAULT, DATA_TYPE, VALIDATION, CONVERSION and
// REFERENCE. Documents are checked for structural problems and reference
// cycles when a Registry is built, so validation never has to guard against
// unbounded recursion.
//
// Validator.Validate turns raw payload data into a typed context map plus a
// map of per-field errors. It never returns an error value: schema problems are
// reported under the "_schema" key and unexpected failures under "_internal".
package schema
