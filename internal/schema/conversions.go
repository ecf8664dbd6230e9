package schema

import (
	"fmt"
	"strings"
	"sync"
)

// ConversionFunc turns a raw payload value into the value stored in the
// context. It receives nil when the field is absent and has no default.
type ConversionFunc func(value any) (any, error)

// Conversions is a registry of named conversions referenced by a field's
// CONVERSION key.
type Conversions struct {
	mu    sync.RWMutex
	funcs map[string]ConversionFunc
}

// NewConversions returns a registry holding the built-in conversions.
func NewConversions() *Conversions {
	c := &Conversions{funcs: map[string]ConversionFunc{}}
	c.funcs["split_comma"] = splitComma
	c.funcs["lowercase"] = lowercase
	c.funcs["trim"] = trim
	return c
}

// Register adds a named conversion. Names are unique.
func (c *Conversions) Register(name string, fn ConversionFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.funcs[name]; exists {
		return fmt.Errorf("conversion %q: %w", name, ErrDuplicateName)
	}
	c.funcs[name] = fn
	return nil
}

// Lookup returns the named conversion.
func (c *Conversions) Lookup(name string) (ConversionFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	return fn, ok
}

func splitComma(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case string:
		parts := strings.Split(v, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot split %s", typeName(value))
	}
}

func lowercase(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	default:
		return nil, fmt.Errorf("expected string, got %s", typeName(value))
	}
}

func trim(value any) (any, error) {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return value, nil
}
