package schema

import "sort"

// DataType is the declared type of a field.
type DataType string

const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeFloat   DataType = "float"
	TypeBoolean DataType = "boolean"
	TypeArray   DataType = "array"
	TypeObject  DataType = "object"
	TypeAny     DataType = "any"
)

// Valid reports whether d is one of the known data types.
func (d DataType) Valid() bool {
	switch d {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeArray, TypeObject, TypeAny:
		return true
	}
	return false
}

// Rule keys recognised in a field definition.
const (
	KeyRequired    = "REQUIRED"
	KeyDefault     = "DEFAULT"
	KeyDataType    = "DATA_TYPE"
	KeyValidation  = "VALIDATION"
	KeyConversion  = "CONVERSION"
	KeyReference   = "REFERENCE"
	KeyComponent   = "COMPONENT"
	KeyDescription = "DESCRIPTION"
	KeyRef         = "$ref"
)

const definitionsPrefix = "definitions/"

// UserIDSentinel as a field DEFAULT means "use the caller's user id",
// regardless of what the payload carries.
const UserIDSentinel = "socket_internal_user_id"

// Standard field names present in every task context.
const (
	FieldUserID                = "user_id"
	FieldResponseListenerEvent = "response_listener_event"
)

// Field is a compiled field rule. "$ref" targets and sibling overrides are
// already merged in.
type Field struct {
	Name        string
	Required    bool
	Default     any
	DataType    DataType
	Validation  string
	Conversion  string
	Reference   string
	Component   string
	Description string

	// Attributes keeps any other keys (COMPONENT_PROPS, ICON_NAME,
	// TEST_VALUE...) for introspection.
	Attributes map[string]any
}

// Definition is a compiled group of fields: a named group from
// "definitions" or the field set of a task.
type Definition struct {
	Path   string
	Fields []*Field
}

// Field returns the named field.
func (d *Definition) Field(name string) (*Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (d *Definition) sortFields() {
	sort.Slice(d.Fields, func(i, j int) bool { return d.Fields[i].Name < d.Fields[j].Name })
}

func standardFields() []*Field {
	return []*Field{
		{
			Name:        FieldUserID,
			Default:     UserIDSentinel,
			DataType:    TypeString,
			Component:   "input",
			Description: "The ID of the user that submitted the task.",
		},
		{
			Name:        FieldResponseListenerEvent,
			DataType:    TypeString,
			Component:   "input",
			Description: "The stream name responses for this task are delivered on.",
		},
	}
}
