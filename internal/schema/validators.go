package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ValidatorFunc checks a converted field value. A non-nil error becomes the
// field's "Validation failed: ..." message.
type ValidatorFunc func(value any) error

// Validators is a registry of named validators referenced by a field's
// VALIDATION key. Enumerations are registered as a list of allowed values.
type Validators struct {
	mu    sync.RWMutex
	funcs map[string]ValidatorFunc
}

// NewValidators returns a registry holding the built-in validators:
// validate_date_dd_mm_yyyy plus the email, url and uuid tags of
// go-playground/validator.
func NewValidators() *Validators {
	v := &Validators{funcs: map[string]ValidatorFunc{}}
	v.funcs["validate_date_dd_mm_yyyy"] = validateDateDDMMYYYY

	tags := validator.New()
	for _, tag := range []string{"email", "url", "uuid"} {
		v.funcs[tag] = tagValidator(tags, tag)
	}
	return v
}

// Register adds a named validator. Names are unique.
func (v *Validators) Register(name string, fn ValidatorFunc) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.funcs[name]; exists {
		return fmt.Errorf("validator %q: %w", name, ErrDuplicateName)
	}
	v.funcs[name] = fn
	return nil
}

// RegisterEnum adds a validator that accepts only the given values.
func (v *Validators) RegisterEnum(name string, allowed ...any) error {
	values := append([]any(nil), allowed...)
	return v.Register(name, func(value any) error {
		for _, a := range values {
			if sameValue(a, value) {
				return nil
			}
		}
		return fmt.Errorf("Invalid value '%v'. Must be one of %v", value, values)
	})
}

// Lookup returns the named validator.
func (v *Validators) Lookup(name string) (ValidatorFunc, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	fn, ok := v.funcs[name]
	return fn, ok
}

func validateDateDDMMYYYY(value any) error {
	s, ok := value.(string)
	if ok {
		if _, err := time.Parse("02/01/2006", s); err == nil {
			return nil
		}
	}
	return fmt.Errorf("Invalid date format '%v'. Must be in the format DD/MM/YYYY.", value)
}

func tagValidator(validate *validator.Validate, tag string) ValidatorFunc {
	return func(value any) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %s", typeName(value))
		}
		if err := validate.Var(s, tag); err != nil {
			return fmt.Errorf("'%s' is not a valid %s", s, strings.ToUpper(tag))
		}
		return nil
	}
}

// sameValue compares decoded values, treating all numeric kinds as equal
// when they hold the same number.
func sameValue(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
