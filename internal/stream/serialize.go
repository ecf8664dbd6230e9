package stream

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Serialize converts v into plain JSON-compatible values: timestamps become
// ISO-8601 strings, UUIDs strings, enumerations (named scalar types with a
// String method) their name, structs maps keyed by their json names, sets
// (maps to struct{}) and arrays lists. Anything else falls back to its
// string form.
func Serialize(v any) any {
	return serialize(reflect.ValueOf(v))
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	emptyStruct = reflect.TypeOf(struct{}{})
	stringer    = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func serialize(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		if v.Type().Implements(errorType) {
			return v.Interface().(error).Error()
		}
		return serialize(v.Elem())
	}

	t := v.Type()
	switch t {
	case timeType:
		return v.Interface().(time.Time).Format(time.RFC3339Nano)
	case uuidType:
		return v.Interface().(uuid.UUID).String()
	}
	if n, ok := v.Interface().(json.Number); ok {
		return n
	}
	if t.Implements(errorType) {
		return v.Interface().(error).Error()
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.String:
		if t.PkgPath() == "" {
			return v.Interface()
		}
		if t.Implements(stringer) {
			return v.Interface().(fmt.Stringer).String()
		}
		return scalar(v)
	case reflect.Struct:
		return serializeStruct(v)
	case reflect.Map:
		return serializeMap(v)
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes())
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = serialize(v.Index(i))
		}
		return out
	default:
		return fmt.Sprint(v.Interface())
	}
}

func scalar(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	default:
		return v.String()
	}
}

func serializeStruct(v reflect.Value) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		omitEmpty := false
		if tag, ok := sf.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = serialize(fv)
	}
	return out
}

func serializeMap(v reflect.Value) any {
	if v.IsNil() {
		return nil
	}
	if v.Type().Elem() == emptyStruct {
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, fmt.Sprint(serialize(k)))
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out
	}
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[fmt.Sprint(serialize(iter.Key()))] = serialize(iter.Value())
	}
	return out
}
