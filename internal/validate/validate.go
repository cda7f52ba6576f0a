// Package validate checks untrusted request input against small field schemas
// before any of it is allowed near a store query.
package validate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// max counts runes; maxbytes bounds the encoded size.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})

	return v
}

type Kind int

const (
	KindString Kind = iota
	KindEmail
)

func (k Kind) String() string {
	if k == KindEmail {
		return "email"
	}
	return "string"
}

// Rule describes one scalar field. MaxLength counts characters and MaxBytes
// counts UTF-8 bytes; zero means unbounded.
type Rule struct {
	Kind      Kind
	Required  bool
	MaxLength int
	MaxBytes  int
}

type Field struct {
	Name string
	Rule Rule
}

// Schema is evaluated in declaration order; the first failing field wins.
type Schema []Field

type ValidationError struct {
	Field   string
	Rule    string
	Param   string
	Message string
	// Injection is set when the value had structure (object or array) where a
	// scalar was expected.
	Injection bool
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsInjection reports whether err is a ValidationError raised by a structured value.
func IsInjection(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Injection
}

func (s Schema) Validate(candidate map[string]any) error {
	for _, f := range s {
		if err := f.Rule.Check(f.Name, candidate[f.Name]); err != nil {
			return err
		}
	}
	return nil
}

// Check validates a single value. A nil value is treated as absent.
func (r Rule) Check(field string, value any) error {
	if value == nil {
		if r.Required {
			return newError(field, "required", "")
		}
		return nil
	}

	s, ok := value.(string)
	if !ok {
		ve := newError(field, "type", r.Kind.String())
		ve.Injection = isStructured(value)
		return ve
	}

	err := validate.Var(s, r.tag())
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return newError(field, fe.Tag(), fe.Param())
	}

	return fmt.Errorf("validate %s: %w", field, err)
}

func (r Rule) tag() string {
	parts := make([]string, 0, 4)

	if r.Required {
		parts = append(parts, "required")
	} else {
		parts = append(parts, "omitempty")
	}

	if r.Kind == KindEmail {
		parts = append(parts, "email")
	}

	if r.MaxLength > 0 {
		parts = append(parts, "max="+strconv.Itoa(r.MaxLength))
	}

	if r.MaxBytes > 0 {
		parts = append(parts, "maxbytes="+strconv.Itoa(r.MaxBytes))
	}

	return strings.Join(parts, ",")
}

// String returns candidate[key] when it is a string and "" otherwise.
// Only call it after the schema accepted the candidate.
func String(candidate map[string]any, key string) string {
	s, _ := candidate[key].(string)
	return s
}

func isStructured(v any) bool {
	switch v.(type) {
	case map[string]any, map[string]string, []any, []string:
		return true
	default:
		return false
	}
}

func newError(field, rule, param string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Rule:    rule,
		Param:   param,
		Message: message(field, rule, param),
	}
}

func message(field, rule, param string) string {
	quoted := strconv.Quote(field)

	switch rule {
	case "required":
		return quoted + " is required"
	case "email":
		return quoted + " must be a valid email"
	case "max":
		return fmt.Sprintf("%s length must be less than or equal to %s characters long", quoted, param)
	case "maxbytes":
		return fmt.Sprintf("%s must not be longer than %s bytes", quoted, param)
	case "type":
		return quoted + " must be a " + param
	default:
		if param != "" {
			return fmt.Sprintf("%s failed %s validation (%s)", quoted, rule, param)
		}
		return quoted + " failed " + rule + " validation"
	}
}
