package schema

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Reserved error keys.
const (
	ErrorKeySchema   = "_schema"
	ErrorKeyInternal = "_internal"
)

// Result is the outcome of validating one task payload.
//
// Context always holds user_id and response_listener_event. Errors maps a
// field name to a message string, or to a nested map for fields with a
// REFERENCE (array elements are keyed "[idx]"). A field with any error is
// absent from Context.
type Result struct {
	Service string         `json:"service"`
	Task    string         `json:"task"`
	Context map[string]any `json:"context"`
	Errors  map[string]any `json:"errors"`
}

// Valid reports whether validation produced no errors.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// ResponseListenerEvent returns the stream name assigned to the task.
func (r *Result) ResponseListenerEvent() string {
	s, _ := r.Context[FieldResponseListenerEvent].(string)
	return s
}

// Validator validates payloads against a Registry.
type Validator struct {
	registry    *Registry
	conversions *Conversions
	validators  *Validators
	logger      *slog.Logger
	newID       func() string
}

// NewValidator creates a Validator. Nil registries get the built-in sets.
func NewValidator(registry *Registry, conversions *Conversions, validators *Validators, logger *slog.Logger) *Validator {
	if conversions == nil {
		conversions = NewConversions()
	}
	if validators == nil {
		validators = NewValidators()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		registry:    registry,
		conversions: conversions,
		validators:  validators,
		logger:      logger.With("component", "schema_validator"),
		newID:       uuid.NewString,
	}
}

// Registry returns the schema the validator checks against.
func (v *Validator) Registry() *Registry {
	return v.registry
}

// Validate checks data against the schema of service/task for the given
// caller. It never panics and never returns an error value.
func (v *Validator) Validate(data map[string]any, service, task, userID string) (res Result) {
	res = Result{
		Service: service,
		Task:    task,
		Context: map[string]any{
			FieldUserID:                userID,
			FieldResponseListenerEvent: data[FieldResponseListenerEvent],
		},
		Errors: map[string]any{},
	}

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("unexpected validation failure",
				"service", service,
				"task", task,
				"panic", fmt.Sprint(r))
			res.Errors[ErrorKeyInternal] = fmt.Sprintf("Internal validation error: %v", r)
		}
		if s, _ := res.Context[FieldResponseListenerEvent].(string); s == "" {
			res.Context[FieldResponseListenerEvent] = v.newID()
		}
	}()

	def, ok := v.registry.Task(service, task)
	if !ok {
		res.Errors[ErrorKeySchema] = fmt.Sprintf("Task definition '%s.%s' not found.", service, task)
		return res
	}

	values, errs := v.validateFields(data, def.Fields, userID)
	for k, val := range values {
		res.Context[k] = val
	}
	for k, e := range errs {
		res.Errors[k] = e
	}
	return res
}

func (v *Validator) validateFields(data map[string]any, fields []*Field, userID string) (map[string]any, map[string]any) {
	values := map[string]any{}
	errs := map[string]any{}

	for _, f := range fields {
		value := data[f.Name]
		if value == nil {
			value = cloneValue(f.Default)
		}
		if s, ok := f.Default.(string); ok && s == UserIDSentinel {
			value = userID
		}

		converted, err := v.convert(value, f)
		if err != nil {
			errs[f.Name] = "Conversion failed: " + err.Error()
			continue
		}

		var messages []string
		var nested map[string]any

		if f.Required && converted == nil && value == nil {
			messages = append(messages, "Missing required field")
		}

		if f.Reference != "" && converted != nil {
			converted, nested, messages = v.validateReference(f, converted, userID, messages)
		}

		if len(messages) == 0 && nested == nil && f.Validation != "" && converted != nil {
			if fn, ok := v.validators.Lookup(f.Validation); ok {
				if err := fn(converted); err != nil {
					messages = append(messages, "Validation failed: "+err.Error())
				}
			} else {
				v.logger.Debug("unknown validator skipped", "validator", f.Validation, "field", f.Name)
			}
		}

		switch {
		case nested != nil:
			errs[f.Name] = nested
		case len(messages) > 0:
			errs[f.Name] = strings.Join(messages, "; ")
		default:
			values[f.Name] = converted
		}
	}
	return values, errs
}

func (v *Validator) validateReference(f *Field, value any, userID string, messages []string) (any, map[string]any, []string) {
	ref, ok := v.registry.Definition(f.Reference)
	if !ok {
		return value, nil, append(messages, fmt.Sprintf("Unknown reference '%s'", f.Reference))
	}

	switch cv := value.(type) {
	case map[string]any:
		sub, subErrs := v.validateFields(cv, ref.Fields, userID)
		if len(subErrs) > 0 {
			return sub, subErrs, messages
		}
		return sub, nil, messages
	case []any:
		if f.DataType != TypeArray {
			break
		}
		items := make([]any, 0, len(cv))
		itemErrs := map[string]any{}
		for idx, item := range cv {
			key := fmt.Sprintf("[%d]", idx)
			obj, ok := item.(map[string]any)
			if !ok {
				itemErrs[key] = fmt.Sprintf("Expected object for reference '%s', got %s", f.Reference, typeName(item))
				continue
			}
			sub, subErrs := v.validateFields(obj, ref.Fields, userID)
			if len(subErrs) > 0 {
				itemErrs[key] = subErrs
			}
			items = append(items, sub)
		}
		if len(itemErrs) > 0 {
			return items, itemErrs, messages
		}
		return items, nil, messages
	}

	return value, nil, append(messages, fmt.Sprintf(
		"Data type mismatch for reference '%s'. Expected object or array, got %s", f.Reference, typeName(value)))
}

func (v *Validator) convert(value any, f *Field) (any, error) {
	if f.Conversion != "" {
		if fn, ok := v.conversions.Lookup(f.Conversion); ok {
			return fn(value)
		}
	}
	return Coerce(value, f.DataType), nil
}
