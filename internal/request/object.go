package request

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/schema"
)

// Object is one task object of a submission.
type Object struct {
	Task     string
	Index    int
	Stream   bool
	TaskData map[string]any
}

// ParseObject checks the structure of a raw task object. The task name is
// read from "task" or "taskName"; "taskData" is mandatory. It returns every
// structural problem found.
func ParseObject(raw any) (Object, []string) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Object{}, []string{"Object is not a dictionary"}
	}

	var (
		obj  Object
		errs []string
	)

	name, _ := m["task"].(string)
	if name == "" {
		name, _ = m["taskName"].(string)
	}
	if name == "" {
		errs = append(errs, "Task was not provided. Either 'task' or 'taskName' field is required in the task object.")
	}

	data, present := m["taskData"]
	switch td := data.(type) {
	case map[string]any:
		obj.TaskData = td
	case nil:
		errs = append(errs, "TaskData was not provided. This field is required in the task object.")
	default:
		if present {
			errs = append(errs, fmt.Sprintf("TaskData must be an object, got %T.", data))
		}
	}

	if len(errs) > 0 {
		return Object{}, errs
	}

	obj.Task = name
	obj.Index = toInt(m["index"])
	obj.Stream, _ = m["stream"].(bool)
	return obj, nil
}

// Items normalizes a submission body into a list of task objects: a single
// object becomes a one-element list and anything that is neither yields
// nothing.
func Items(data any) []any {
	switch v := data.(type) {
	case map[string]any:
		return []any{v}
	case []any:
		return v
	default:
		return nil
	}
}

// AssignListenerEvents gives every task object a response_listener_event
// inside its taskData, keeping one the client already chose, and returns
// the names in order. Objects without a usable taskData still get a name
// so the caller can acknowledge every item.
func AssignListenerEvents(items []any, newID func() string) []string {
	if newID == nil {
		newID = uuid.NewString
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			names = append(names, newID())
			continue
		}
		td, ok := m["taskData"].(map[string]any)
		if !ok {
			names = append(names, newID())
			continue
		}
		name, _ := td[schema.FieldResponseListenerEvent].(string)
		if name == "" {
			name = newID()
			td[schema.FieldResponseListenerEvent] = name
		}
		names = append(names, name)
	}
	return names
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
