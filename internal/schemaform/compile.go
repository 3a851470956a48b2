package schemaform

import (
	"fmt"
	"regexp"
	"strings"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Kind is the closed set of compiled field variants. The schema's "type"
// string is resolved exactly once, at compile time; validation dispatches on
// Kind instead of re-inspecting the schema per request.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindNumber
	KindBoolean
	KindObject
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindObject:
		return "object"
	case KindNull:
		return "null"
	}
	return "unknown"
}

// Field is one compiled questionnaire field with its validators resolved.
type Field struct {
	Name     string
	Label    string
	Kind     Kind
	Format   Format
	Required bool
	Enum     []string
	Const    *bool
	Default  any
	Hint     string

	pattern  *regexp.Regexp
	min, max *float64

	// Group holds the compiled sub-form for object fields.
	Group *Form
}

// Form is an ordered set of compiled fields ready to render and to validate
// submitted values against.
type Form struct {
	Fields []Field
}

// Compile turns a questionnaire schema into a Form. The schema must be an
// object node. Malformed schemas yield a configuration error; organizer-side
// meta-schema checks (CheckSchema) should have caught them before the schema
// was ever attached to an event, so hitting one here indicates stored state
// that bypassed the save-time gate.
func Compile(schema *Schema) (*Form, error) {
	if schema == nil {
		return &Form{}, nil
	}
	if schema.Type != TypeObject {
		return nil, dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("top-level schema type must be object, got %q", schema.Type))
	}
	return compileObject(schema)
}

func compileObject(schema *Schema) (*Form, error) {
	form := &Form{Fields: make([]Field, 0, len(schema.Properties))}
	for _, p := range schema.Properties {
		field, err := compileField(p.Name, p.Schema, schema.isRequired(p.Name))
		if err != nil {
			return nil, err
		}
		form.Fields = append(form.Fields, field)
	}
	return form, nil
}

func compileField(name string, schema *Schema, required bool) (Field, error) {
	field := Field{
		Name:     name,
		Label:    schema.Label,
		Format:   schema.Format,
		Required: required,
		Enum:     schema.Enum,
		Const:    schema.Const,
		Default:  schema.Default,
		Hint:     schema.ErrorHint,
		min:      schema.Minimum,
		max:      schema.Maximum,
	}
	if field.Label == "" {
		field.Label = titleCase(name)
	}

	if schema.Pattern != "" {
		re, err := regexp.Compile(schema.Pattern)
		if err != nil {
			return Field{}, dErrors.Wrap(err, dErrors.CodeConfiguration,
				fmt.Sprintf("field %q: invalid pattern", name))
		}
		field.pattern = re
	}

	switch schema.Type {
	case TypeString:
		field.Kind = KindString
		switch schema.Format {
		case "", FormatEmail, FormatLatex, FormatMultiline, FormatRadio, FormatSelect:
		default:
			return Field{}, dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("field %q: unknown format %q", name, schema.Format))
		}
	case TypeInteger:
		field.Kind = KindInteger
	case TypeNumber:
		field.Kind = KindNumber
	case TypeBoolean:
		field.Kind = KindBoolean
		// A const acknowledgement checkbox must be ticked, so the field is
		// required regardless of the top-level required list.
		if schema.Const != nil {
			field.Required = true
		}
	case TypeNull:
		field.Kind = KindNull
	case TypeObject:
		field.Kind = KindObject
		group, err := compileObject(schema)
		if err != nil {
			return Field{}, err
		}
		field.Group = group
	default:
		return Field{}, dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("field %q: unknown type %q", name, schema.Type))
	}

	return field, nil
}

func titleCase(name string) string {
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// Descriptor is the renderable shape of a compiled field, suitable for
// returning to clients that build the registration form.
type Descriptor struct {
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Type     string       `json:"type"`
	Format   string       `json:"format,omitempty"`
	Required bool         `json:"required"`
	Enum     []string     `json:"enum,omitempty"`
	Default  any          `json:"default,omitempty"`
	Hint     string       `json:"hint,omitempty"`
	Fields   []Descriptor `json:"fields,omitempty"`
}

// Describe returns the ordered renderable descriptors for the form.
func (f *Form) Describe() []Descriptor {
	descriptors := make([]Descriptor, 0, len(f.Fields))
	for _, field := range f.Fields {
		d := Descriptor{
			Name:     field.Name,
			Label:    field.Label,
			Type:     field.Kind.String(),
			Format:   string(field.Format),
			Required: field.Required,
			Enum:     field.Enum,
			Default:  field.Default,
			Hint:     field.Hint,
		}
		if field.Group != nil {
			d.Fields = field.Group.Describe()
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}
