package schemaform

import (
	"fmt"
	"regexp"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// CheckSchema validates a questionnaire schema against the meta-schema. It is
// the save-time gate: an event only accepts a schema that passes, so unknown
// types or formats are an organizer-facing configuration error and never a
// participant-facing one.
func CheckSchema(schema *Schema) error {
	if schema == nil {
		return dErrors.New(dErrors.CodeConfiguration, "schema is required")
	}
	if schema.Type != TypeObject {
		return dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("top-level schema type must be object, got %q", schema.Type))
	}
	return checkObject("", schema)
}

func checkObject(path string, schema *Schema) error {
	for _, name := range schema.Required {
		if schema.Property(name) == nil {
			return dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("%s: required field %q is not declared", orRoot(path), name))
		}
	}
	for _, p := range schema.Properties {
		if err := checkNode(joinPath(path, p.Name), p.Schema); err != nil {
			return err
		}
	}
	return nil
}

func checkNode(path string, schema *Schema) error {
	if schema == nil {
		return dErrors.New(dErrors.CodeConfiguration, path+": schema is missing")
	}

	// Pattern placement and compilability are checked up front: Compile
	// resolves the regexp for every node, so a pattern that slips past this
	// gate would surface as a configuration error on a participant request.
	if schema.Pattern != "" {
		if schema.Type != TypeString {
			return dErrors.New(dErrors.CodeConfiguration, path+": pattern is only valid on string fields")
		}
		if _, err := regexp.Compile(schema.Pattern); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConfiguration, path+": invalid pattern")
		}
	}

	switch schema.Type {
	case TypeString:
		switch schema.Format {
		case "", FormatEmail, FormatLatex, FormatMultiline, FormatRadio, FormatSelect:
		default:
			return dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("%s: unknown format %q", path, schema.Format))
		}
		if schema.Const != nil {
			return dErrors.New(dErrors.CodeConfiguration, path+": const is only valid on boolean fields")
		}

	case TypeInteger, TypeNumber:
		if schema.Minimum != nil && schema.Maximum != nil && *schema.Minimum > *schema.Maximum {
			return dErrors.New(dErrors.CodeConfiguration, path+": minimum exceeds maximum")
		}
		if len(schema.Enum) > 0 {
			return dErrors.New(dErrors.CodeConfiguration, path+": enum is only valid on string fields")
		}

	case TypeBoolean, TypeNull:
		if len(schema.Enum) > 0 {
			return dErrors.New(dErrors.CodeConfiguration, path+": enum is only valid on string fields")
		}

	case TypeObject:
		if len(schema.Properties) == 0 {
			return dErrors.New(dErrors.CodeConfiguration, path+": object field declares no properties")
		}
		return checkObject(path, schema)

	default:
		return dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("%s: unknown type %q", path, schema.Type))
	}

	if schema.Format != "" && schema.Type != TypeString {
		return dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("%s: format is only valid on string fields", path))
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func orRoot(path string) string {
	if path == "" {
		return "schema"
	}
	return path
}
