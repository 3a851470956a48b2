package schemaform

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
)

// Errors maps field names to validation messages. Sub-form errors are scoped
// with a dotted path ("languages.other").
type Errors map[string]string

// Any reports whether at least one field failed validation.
func (e Errors) Any() bool {
	return len(e) > 0
}

func (e Errors) add(key, msg string) {
	e[key] = msg
}

// Validate checks submitted values against the compiled form and returns the
// normalized payload. Absent optional fields fall back to the schema default
// when one is declared; absent fields without a default are omitted from the
// result. Validation is a pure mapping and mutates neither the form nor the
// input.
func (f *Form) Validate(values map[string]any) (map[string]any, Errors) {
	errs := make(Errors)
	out := f.validateInto("", values, errs)
	return out, errs
}

func (f *Form) validateInto(prefix string, values map[string]any, errs Errors) map[string]any {
	out := make(map[string]any)
	for _, field := range f.Fields {
		key := field.Name
		if prefix != "" {
			key = prefix + "." + field.Name
		}

		raw, present := values[field.Name]
		if !present || isEmpty(raw) {
			if field.Default != nil {
				raw, present = field.Default, true
			}
		}

		switch field.Kind {
		case KindNull:
			// informational only

		case KindObject:
			sub, _ := raw.(map[string]any)
			if sub == nil {
				sub = map[string]any{}
			}
			out[field.Name] = field.Group.validateInto(key, sub, errs)

		case KindBoolean:
			field.validateBoolean(key, raw, present, out, errs)

		default:
			if !present || isEmpty(raw) {
				if field.Required {
					errs.add(key, field.message("this field is required"))
				}
				continue
			}
			switch field.Kind {
			case KindString:
				field.validateString(key, raw, out, errs)
			case KindInteger:
				field.validateInteger(key, raw, out, errs)
			case KindNumber:
				field.validateNumber(key, raw, out, errs)
			default:
				// unreachable for schemas that passed CheckSchema
				errs.add(key, "field is misconfigured")
			}
		}
	}
	return out
}

func (field *Field) validateString(key string, raw any, out map[string]any, errs Errors) {
	value, ok := raw.(string)
	if !ok {
		errs.add(key, field.message("must be a string"))
		return
	}
	if field.Required && strings.TrimSpace(value) == "" {
		errs.add(key, field.message("this field is required"))
		return
	}

	if field.pattern != nil && !field.pattern.MatchString(value) {
		errs.add(key, field.message("does not match the expected pattern"))
		return
	}

	if len(field.Enum) > 0 {
		for _, option := range field.Enum {
			if value == option {
				out[field.Name] = value
				return
			}
		}
		errs.add(key, field.message("not one of the allowed choices"))
		return
	}

	if field.Format == FormatEmail {
		if !validEmail(value) {
			errs.add(key, field.message("not a valid email address"))
			return
		}
	}

	out[field.Name] = value
}

func (field *Field) validateInteger(key string, raw any, out map[string]any, errs Errors) {
	var value int64
	switch v := raw.(type) {
	case int:
		value = int64(v)
	case int64:
		value = v
	case float64:
		if v != math.Trunc(v) {
			errs.add(key, field.message("must be a whole number"))
			return
		}
		value = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			errs.add(key, field.message("must be a whole number"))
			return
		}
		value = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs.add(key, field.message("must be a whole number"))
			return
		}
		value = n
	default:
		errs.add(key, field.message("must be a whole number"))
		return
	}

	if !field.inRange(float64(value)) {
		errs.add(key, field.rangeMessage())
		return
	}
	out[field.Name] = value
}

func (field *Field) validateNumber(key string, raw any, out map[string]any, errs Errors) {
	var value float64
	switch v := raw.(type) {
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case float64:
		value = v
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			errs.add(key, field.message("must be a number"))
			return
		}
		value = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs.add(key, field.message("must be a number"))
			return
		}
		value = n
	default:
		errs.add(key, field.message("must be a number"))
		return
	}

	if !field.inRange(value) {
		errs.add(key, field.rangeMessage())
		return
	}
	out[field.Name] = value
}

func (field *Field) validateBoolean(key string, raw any, present bool, out map[string]any, errs Errors) {
	value := false
	if present {
		v, ok := raw.(bool)
		if !ok {
			errs.add(key, field.message("must be true or false"))
			return
		}
		value = v
	}

	if field.Const != nil && value != *field.Const {
		errs.add(key, field.message("must be accepted"))
		return
	}
	// A required checkbox without const still has to be ticked; an absent or
	// false value does not satisfy it.
	if field.Const == nil && field.Required && !value {
		errs.add(key, field.message("this field is required"))
		return
	}
	if present {
		out[field.Name] = value
	}
}

func (field *Field) inRange(value float64) bool {
	if field.min != nil && value < *field.min {
		return false
	}
	if field.max != nil && value > *field.max {
		return false
	}
	return true
}

func (field *Field) rangeMessage() string {
	if field.Hint != "" {
		return field.Hint
	}
	switch {
	case field.min != nil && field.max != nil:
		return fmt.Sprintf("must be between %v and %v", *field.min, *field.max)
	case field.min != nil:
		return fmt.Sprintf("must be at least %v", *field.min)
	default:
		return fmt.Sprintf("must be at most %v", *field.max)
	}
}

// message returns the organizer-authored error hint when one is set.
func (field *Field) message(fallback string) string {
	if field.Hint != "" {
		return field.Hint
	}
	return fallback
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// validEmail reports whether addr is a bare, well-formed address.
func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	// Reject display names and angle brackets; only bare addresses are stored.
	return parsed.Address == addr
}

// ValidEmail reports whether addr is a well-formed bare address, optionally
// restricted to a mail domain (used for events that only accept institutional
// addresses).
func ValidEmail(addr, requiredDomain string) bool {
	if !validEmail(addr) {
		return false
	}
	if requiredDomain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(addr), "@"+strings.ToLower(requiredDomain))
}
