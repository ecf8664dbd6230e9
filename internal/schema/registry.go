package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is a loaded, merged and structurally checked schema.
// It is immutable after NewRegistry returns and safe for concurrent use.
type Registry struct {
	doc    *Document
	fields map[string]*Field
	groups map[string]*Definition
	tasks  map[string]map[string]*Definition
}

// NewRegistry merges user with the built-in default schema, checks the
// result and compiles it. Any structural problem or reference cycle is
// returned as an *Error.
func NewRegistry(user *Document) (*Registry, error) {
	merged := Merge(user)
	r := &Registry{
		doc:    merged,
		fields: map[string]*Field{},
		groups: map[string]*Definition{},
		tasks:  map[string]map[string]*Definition{},
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	if err := r.checkCycles(); err != nil {
		return nil, err
	}
	return r, nil
}

// Document returns a copy of the merged schema document.
func (r *Registry) Document() *Document {
	return r.doc.Clone()
}

// Task returns the compiled fields of a task, including the standard fields.
// Lookup is case-insensitive.
func (r *Registry) Task(service, task string) (*Definition, bool) {
	tasks, ok := r.tasks[strings.ToUpper(service)]
	if !ok {
		return nil, false
	}
	def, ok := tasks[strings.ToUpper(task)]
	return def, ok
}

// Definition returns a named group from the definitions graph.
func (r *Registry) Definition(name string) (*Definition, bool) {
	def, ok := r.groups[name]
	return def, ok
}

// Services lists the services declared in the schema, sorted.
func (r *Registry) Services() []string {
	out := make([]string, 0, len(r.tasks))
	for s := range r.tasks {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Tasks lists the task names of a service, sorted.
func (r *Registry) Tasks(service string) []string {
	tasks := r.tasks[strings.ToUpper(service)]
	out := make([]string, 0, len(tasks))
	for t := range tasks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func isGroup(def map[string]any) bool {
	for _, v := range def {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func (r *Registry) compile() error {
	names := sortedKeys(r.doc.Definitions)

	// Single field definitions first so groups can resolve "$ref".
	for _, name := range names {
		path := definitionsPrefix + name
		raw, ok := r.doc.Definitions[name].(map[string]any)
		if !ok {
			return schemaErr(path, "expected an object, got %s", typeName(r.doc.Definitions[name]))
		}
		if isGroup(raw) {
			continue
		}
		if _, hasRef := raw[KeyRef]; hasRef {
			return schemaErr(path, "$ref is not allowed in a field definition")
		}
		f, err := compileField(path, name, raw)
		if err != nil {
			return err
		}
		r.fields[name] = f
	}

	for _, name := range names {
		raw := r.doc.Definitions[name].(map[string]any)
		if !isGroup(raw) {
			continue
		}
		def, err := r.compileGroup(definitionsPrefix+name, raw)
		if err != nil {
			return err
		}
		r.groups[name] = def
	}

	// REFERENCE targets can only be checked once every group is known.
	for _, name := range names {
		if def, ok := r.groups[name]; ok {
			if err := r.checkReferences(def); err != nil {
				return err
			}
		}
		if f, ok := r.fields[name]; ok && f.Reference != "" {
			if _, ok := r.groups[f.Reference]; !ok {
				return schemaErr(definitionsPrefix+name, "REFERENCE '%s' must name a definition group", f.Reference)
			}
		}
	}

	for _, service := range sortedKeys(r.doc.Tasks) {
		upperService := strings.ToUpper(service)
		if r.tasks[upperService] == nil {
			r.tasks[upperService] = map[string]*Definition{}
		}
		tasks := r.doc.Tasks[service]
		for _, task := range sortedKeys(tasks) {
			path := "tasks/" + service + "/" + task
			raw, ok := tasks[task].(map[string]any)
			if !ok {
				return schemaErr(path, "expected an object, got %s", typeName(tasks[task]))
			}
			def, err := r.compileTask(path, raw)
			if err != nil {
				return err
			}
			r.tasks[upperService][strings.ToUpper(task)] = def
		}
	}
	return nil
}

func (r *Registry) compileTask(path string, raw map[string]any) (*Definition, error) {
	var base *Definition
	if ref, ok := raw[KeyRef]; ok {
		if len(raw) > 1 {
			return nil, schemaErr(path, "a task definition with $ref cannot have other properties")
		}
		name, err := refName(path, ref)
		if err != nil {
			return nil, err
		}
		group, ok := r.groups[name]
		if !ok {
			return nil, schemaErr(path, "reference '%v' must point to a definition group", ref)
		}
		base = group
	} else {
		group, err := r.compileGroup(path, raw)
		if err != nil {
			return nil, err
		}
		if err := r.checkReferences(group); err != nil {
			return nil, err
		}
		base = group
	}

	def := &Definition{Path: path, Fields: append([]*Field(nil), base.Fields...)}
	for _, std := range standardFields() {
		if _, exists := def.Field(std.Name); !exists {
			def.Fields = append(def.Fields, std)
		}
	}
	def.sortFields()
	return def, nil
}

func (r *Registry) compileGroup(path string, raw map[string]any) (*Definition, error) {
	def := &Definition{Path: path}
	for _, name := range sortedKeys(raw) {
		fieldPath := path + "/" + name
		rules, ok := raw[name].(map[string]any)
		if !ok {
			return nil, schemaErr(fieldPath, "expected an object, got %s", typeName(raw[name]))
		}

		if ref, hasRef := rules[KeyRef]; hasRef {
			target, err := refName(fieldPath, ref)
			if err != nil {
				return nil, err
			}
			if _, exists := r.doc.Definitions[target].(map[string]any); exists && r.fields[target] == nil {
				return nil, schemaErr(fieldPath, "reference '%v' must point to a field definition", ref)
			}
			if r.fields[target] == nil {
				return nil, schemaErr(fieldPath, "reference '%v' could not be resolved", ref)
			}
			targetRaw := cloneValue(r.doc.Definitions[target]).(map[string]any)
			for k, v := range rules {
				if k != KeyRef {
					targetRaw[k] = v
				}
			}
			rules = targetRaw
		}

		f, err := compileField(fieldPath, name, rules)
		if err != nil {
			return nil, err
		}
		def.Fields = append(def.Fields, f)
	}
	def.sortFields()
	return def, nil
}

func (r *Registry) checkReferences(def *Definition) error {
	for _, f := range def.Fields {
		if f.Reference == "" {
			continue
		}
		if _, ok := r.groups[f.Reference]; !ok {
			return schemaErr(def.Path+"/"+f.Name, "REFERENCE '%s' must name a definition group", f.Reference)
		}
	}
	return nil
}

// checkCycles walks REFERENCE edges between groups and fails on the first
// path that revisits a group.
func (r *Registry) checkCycles() error {
	done := map[string]bool{}
	var walk func(name string, stack []string) error
	walk = func(name string, stack []string) error {
		for i, seen := range stack {
			if seen == name {
				cycle := append(append([]string{}, stack[i:]...), name)
				for j := range cycle {
					cycle[j] = definitionsPrefix + cycle[j]
				}
				return &Error{
					Path:  cycle[0],
					Msg:   fmt.Sprintf("circular reference detected: %s", strings.Join(cycle, " -> ")),
					cycle: true,
				}
			}
		}
		if done[name] {
			return nil
		}
		stack = append(stack, name)
		for _, f := range r.groups[name].Fields {
			if f.Reference == "" {
				continue
			}
			if err := walk(f.Reference, stack); err != nil {
				return err
			}
		}
		done[name] = true
		return nil
	}

	for _, name := range sortedKeys(r.groups) {
		if err := walk(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func refName(path string, ref any) (string, error) {
	s, ok := ref.(string)
	if !ok || !strings.HasPrefix(s, definitionsPrefix) {
		return "", schemaErr(path, "reference '%v' could not be resolved", ref)
	}
	return strings.TrimPrefix(s, definitionsPrefix), nil
}

func compileField(path, name string, rules map[string]any) (*Field, error) {
	f := &Field{Name: name, Attributes: map[string]any{}}

	for key, v := range rules {
		switch key {
		case KeyRequired:
			if v == nil {
				continue
			}
			b, ok := v.(bool)
			if !ok {
				return nil, schemaErr(path, "REQUIRED must be a boolean, got %s", typeName(v))
			}
			f.Required = b
		case KeyDefault:
			f.Default = cloneValue(v)
		case KeyDataType:
			s, _ := v.(string)
			f.DataType = DataType(s)
		case KeyValidation, KeyConversion, KeyReference, KeyComponent, KeyDescription:
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, schemaErr(path, "%s must be a string, got %s", key, typeName(v))
			}
			switch key {
			case KeyValidation:
				f.Validation = s
			case KeyConversion:
				f.Conversion = s
			case KeyReference:
				f.Reference = s
			case KeyComponent:
				f.Component = s
			case KeyDescription:
				f.Description = s
			}
		case KeyRef:
			return nil, schemaErr(path, "$ref is not allowed in an inline field definition")
		default:
			f.Attributes[key] = cloneValue(v)
		}
	}

	if _, ok := rules[KeyDataType]; !ok {
		return nil, schemaErr(path, "missing required property '%s'", KeyDataType)
	}
	if !f.DataType.Valid() {
		return nil, schemaErr(path, "unknown DATA_TYPE '%v'", rules[KeyDataType])
	}
	if f.Reference != "" && f.DataType != TypeArray && f.DataType != TypeObject {
		return nil, schemaErr(path, "REFERENCE is only allowed for fields with DATA_TYPE 'array' or 'object'")
	}
	return f, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
