package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern   = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
)

// Coerce applies the standard conversion for a data type. Values that do not
// look like the target type pass through unchanged so a later validator or
// handler can decide what to do with them. nil is always returned as nil.
func Coerce(value any, dt DataType) any {
	if value == nil {
		return nil
	}
	switch dt {
	case TypeString:
		return toString(value)
	case TypeInteger:
		return toInteger(value)
	case TypeFloat:
		return toFloat(value)
	case TypeBoolean:
		return toBoolean(value)
	case TypeArray:
		if arr, ok := value.([]any); ok {
			return arr
		}
		return []any{value}
	case TypeObject:
		if s, ok := value.(string); ok {
			var parsed any
			if err := jsoncodec.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed
			}
		}
		return value
	default:
		// TypeAny and anything unrecognised.
		return value
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case map[string]any, []any:
		out, err := jsoncodec.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(out)
	default:
		return fmt.Sprint(v)
	}
}

func toInteger(value any) any {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if !integerPattern.MatchString(s) {
			return value
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return value
		}
		return n
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int(v)
		}
		return value
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		return value
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return value
	}
}

func toFloat(value any) any {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if !floatPattern.MatchString(s) {
			return value
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value
		}
		return f
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return value
	default:
		// TypeAny and anything unrecognised.
		return value
	}
}

func toBoolean(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1"
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// typeName names a decoded value's type the way JSON would.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64:
		return "integer"
	case float32, float64, json.Number:
		return "float"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
