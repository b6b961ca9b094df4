// Package validation checks declaration patches against a versioned,
// conditionally-visible form schema. It is a pure function of its inputs:
// no I/O, no side effects.
package validation

import "reflect"

// FieldType is the value shape a form field accepts.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeSelect   FieldType = "select"
	TypeCheckbox FieldType = "checkbox"
	TypeFile     FieldType = "file"
)

// Op is a visibility-condition operator.
type Op string

const (
	OpEquals    Op = "equals"
	OpNotEquals Op = "not_equals"
	OpExists    Op = "exists"
	OpAbsent    Op = "absent"
	OpIn        Op = "in"
)

// Condition is a predicate over the merged declaration. A field is visible
// only when all of its conditions hold.
type Condition struct {
	Field  string
	Op     Op
	Value  any
	Values []any // for OpIn
}

// Field describes one form field keyed by its dotted declaration path.
type Field struct {
	ID         string
	Type       FieldType
	Required   bool
	Options    []string // for TypeSelect
	Conditions []Condition
}

// FormSchema is a versioned set of form fields. The version tag travels on
// every patch entered against it.
type FormSchema struct {
	Version string
	Fields  []Field
}

// Field looks up a schema field by its declaration path.
func (s FormSchema) Field(id string) (Field, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// holds evaluates a single condition against merged declaration fields.
func (c Condition) holds(merged map[string]any) bool {
	v, ok := merged[c.Field]
	switch c.Op {
	case OpEquals:
		return ok && reflect.DeepEqual(v, c.Value)
	case OpNotEquals:
		return !ok || !reflect.DeepEqual(v, c.Value)
	case OpExists:
		return ok && !isEmpty(v)
	case OpAbsent:
		return !ok || isEmpty(v)
	case OpIn:
		if !ok {
			return false
		}
		for _, candidate := range c.Values {
			if reflect.DeepEqual(v, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// visible reports whether the field is shown given the merged declaration.
// Fields without conditions are always visible.
func (f Field) visible(merged map[string]any) bool {
	for _, c := range f.Conditions {
		if !c.holds(merged) {
			return false
		}
	}
	return true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
