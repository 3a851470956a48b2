// Package schemaform compiles organizer-authored questionnaire schemas into
// typed field descriptors with validators. Compilation happens once, when a
// schema is loaded; per-request validation only walks the compiled fields.
package schemaform

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type is the declared type of a schema node.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"

	// TypeNull renders an informational field and validates nothing.
	TypeNull Type = "null"
)

// Format refines how a string field is rendered and validated.
type Format string

const (
	FormatEmail     Format = "email"
	FormatLatex     Format = "latex"
	FormatMultiline Format = "multiline"
	FormatRadio     Format = "radio"
	FormatSelect    Format = "select"
)

// Schema is one node of a questionnaire definition. Object nodes carry
// ordered Properties; the order is the order fields are rendered in.
type Schema struct {
	Type      Type     `json:"type"`
	Label     string   `json:"label,omitempty"`
	ErrorHint string   `json:"error_hint,omitempty"`
	Format    Format   `json:"format,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	Const     *bool    `json:"const,omitempty"`
	Default   any      `json:"default,omitempty"`
	Required  []string `json:"required,omitempty"`

	Properties []Property `json:"-"`
}

// Property is a named child schema of an object node.
type Property struct {
	Name   string
	Schema *Schema
}

// Property returns the child schema with the given name, or nil.
func (s *Schema) Property(name string) *Schema {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

func (s *Schema) isRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes a schema while preserving the declaration order of
// "properties". encoding/json maps lose ordering, so the properties object is
// re-parsed token by token.
func (s *Schema) UnmarshalJSON(data []byte) error {
	type plain Schema
	aux := struct {
		*plain
		Properties json.RawMessage `json:"properties,omitempty"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Properties) == 0 {
		return nil
	}

	props, err := parseProperties(aux.Properties)
	if err != nil {
		return err
	}
	s.Properties = props
	return nil
}

func parseProperties(raw []byte) ([]Property, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("properties must be an object")
	}

	var props []Property
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token in properties: %v", keyTok)
		}

		sub := &Schema{}
		if err := dec.Decode(sub); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		props = append(props, Property{Name: name, Schema: sub})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return props, nil
}

// MarshalJSON writes the schema back out with properties in declaration order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	head, err := json.Marshal((*plain)(s))
	if err != nil {
		return nil, err
	}
	if len(s.Properties) == 0 {
		return head, nil
	}

	var buf bytes.Buffer
	// head is a JSON object; splice "properties" in before the closing brace.
	buf.Write(head[:len(head)-1])
	if len(head) > 2 {
		buf.WriteByte(',')
	}
	buf.WriteString(`"properties":{`)
	for i, p := range s.Properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		sub, err := json.Marshal(p.Schema)
		if err != nil {
			return nil, err
		}
		buf.Write(sub)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
