package schema

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is a raw schema document as read from YAML or JSON.
type Document struct {
	Definitions map[string]any            `yaml:"definitions" json:"definitions"`
	Tasks       map[string]map[string]any `yaml:"tasks" json:"tasks"`
}

//go:embed default_schema.yaml
var defaultSchemaYAML []byte

// Parse decodes a YAML or JSON schema document.
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}
	return FromMap(raw)
}

// LoadFile reads and parses a schema document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// FromMap builds a Document from a generic decoded value, checking that both
// top-level sections are objects.
func FromMap(raw map[string]any) (*Document, error) {
	doc := &Document{
		Definitions: map[string]any{},
		Tasks:       map[string]map[string]any{},
	}
	if raw == nil {
		return doc, nil
	}
	raw, _ = normalize(raw).(map[string]any)

	if defs, ok := raw["definitions"]; ok && defs != nil {
		m, ok := defs.(map[string]any)
		if !ok {
			return nil, schemaErr("definitions", "expected an object, got %s", typeName(defs))
		}
		doc.Definitions = m
	}

	if tasks, ok := raw["tasks"]; ok && tasks != nil {
		m, ok := tasks.(map[string]any)
		if !ok {
			return nil, schemaErr("tasks", "expected an object, got %s", typeName(tasks))
		}
		for service, v := range m {
			svc, ok := v.(map[string]any)
			if !ok {
				return nil, schemaErr("tasks/"+service, "expected an object, got %s", typeName(v))
			}
			doc.Tasks[service] = svc
		}
	}

	return doc, nil
}

// DefaultDocument returns a fresh copy of the built-in schema: the mic check
// definition and the ADMIN_SERVICE tasks.
func DefaultDocument() *Document {
	doc, err := Parse(defaultSchemaYAML)
	if err != nil {
		panic(fmt.Sprintf("schema: invalid built-in default schema: %v", err))
	}
	return doc
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{
		Definitions: cloneValue(d.Definitions).(map[string]any),
		Tasks:       make(map[string]map[string]any, len(d.Tasks)),
	}
	for svc, tasks := range d.Tasks {
		out.Tasks[svc] = cloneValue(tasks).(map[string]any)
	}
	return out
}

// ToMap returns the document in its generic {"definitions", "tasks"} form.
func (d *Document) ToMap() map[string]any {
	tasks := make(map[string]any, len(d.Tasks))
	for svc, t := range d.Tasks {
		tasks[svc] = cloneValue(t)
	}
	return map[string]any{
		"definitions": cloneValue(d.Definitions),
		"tasks":       tasks,
	}
}

// MicCheckDefinition is the definition every service's MIC_CHECK task uses.
const MicCheckDefinition = "MIC_CHECK_DEFINITION"

// MicCheckTask is the reserved task name every service supports.
const MicCheckTask = "MIC_CHECK"

// AdminService is the built-in administrative service name.
const AdminService = "ADMIN_SERVICE"

// Merge layers user on top of the built-in default schema. A user-supplied
// MIC_CHECK_DEFINITION or MIC_CHECK task is ignored, and every service ends up
// with MIC_CHECK pointing at the built-in definition.
func Merge(user *Document) *Document {
	merged := DefaultDocument()
	if user != nil {
		for name, def := range user.Definitions {
			if name == MicCheckDefinition {
				continue
			}
			merged.Definitions[name] = cloneValue(def)
		}
		for service, tasks := range user.Tasks {
			if _, ok := merged.Tasks[service]; !ok {
				merged.Tasks[service] = map[string]any{}
			}
			for name, def := range tasks {
				if name == MicCheckTask {
					continue
				}
				merged.Tasks[service][name] = cloneValue(def)
			}
		}
	}

	for service := range merged.Tasks {
		merged.Tasks[service][MicCheckTask] = map[string]any{KeyRef: definitionsPrefix + MicCheckDefinition}
	}
	return merged
}

// normalize converts the map[any]any values some decoders produce into
// map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
