// Package rowmodel describes the typed edit form of a collection row.
//
// A model is a YAML document listing fields with a type and optional bounds:
//
//	fields:
//	  Score: { type: number, min: 0, max: 1000 }
//	  Title: { type: enum, options: [A, B] }
//
// Fields the model does not mention are edited as plain strings. A nil
// *Model accepts everything as strings.
package rowmodel

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"kvedit/internal/kvstore"
)

// FieldType names the input kind of a form field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeEnum    FieldType = "enum"
)

var (
	// ErrInvalidValue marks values that fail coercion or validation.
	ErrInvalidValue = errors.New("invalid field value")
	// ErrReadOnly marks edits to fields the form does not allow changing.
	ErrReadOnly = errors.New("field is read-only")
	// ErrUnknownField marks edits to fields the record does not carry.
	ErrUnknownField = errors.New("unknown field")
)

// Field is one form field definition.
type Field struct {
	Type    FieldType `yaml:"type" validate:"required,oneof=string number boolean enum"`
	Label   string    `yaml:"label"`
	Min     *float64  `yaml:"min"`
	Max     *float64  `yaml:"max"`
	Options []string  `yaml:"options" validate:"required_if=Type enum,dive,required"`
}

// Model maps field names to their definitions.
type Model struct {
	Fields map[string]Field `yaml:"fields" validate:"dive"`

	validate *validator.Validate
}

// Load reads a model from a YAML file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read row model: %w", err)
	}
	model, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

// Parse decodes a model from YAML.
func Parse(data []byte) (*Model, error) {
	var model Model
	if err := yaml.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("parse row model: %w", err)
	}
	model.validate = validator.New()
	for name, field := range model.Fields {
		field.Type = FieldType(strings.ToLower(strings.TrimSpace(string(field.Type))))
		model.Fields[name] = field
	}
	if err := model.validate.Struct(&model); err != nil {
		return nil, fmt.Errorf("row model: %w", err)
	}
	for name, field := range model.Fields {
		if name == kvstore.KeyField {
			return nil, fmt.Errorf("row model: %s cannot be declared", kvstore.KeyField)
		}
		if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
			return nil, fmt.Errorf("row model: field %s has min greater than max", name)
		}
		if (field.Min != nil || field.Max != nil) && field.Type != TypeNumber {
			return nil, fmt.Errorf("row model: field %s sets bounds on a %s field", name, field.Type)
		}
	}
	return &model, nil
}

// FieldNames returns the declared field names in sorted order.
func (m *Model) FieldNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the definition of a field, defaulting to a string field.
func (m *Model) Lookup(name string) (Field, bool) {
	if m == nil {
		return Field{Type: TypeString}, false
	}
	field, ok := m.Fields[name]
	if !ok {
		return Field{Type: TypeString}, false
	}
	return field, true
}

// Coerce converts the raw form input of a field into its typed value. Empty
// input stays an empty string.
func (m *Model) Coerce(name, raw string) (any, error) {
	field, ok := m.Lookup(name)
	if !ok || raw == "" {
		return raw, nil
	}
	switch field.Type {
	case TypeNumber:
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidValue, name, raw)
		}
		return value, nil
	case TypeBoolean:
		value, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalidValue, name, raw)
		}
		return value, nil
	default:
		return raw, nil
	}
}

// Validate checks bounds and enum membership of every modeled field present
// in record. Empty values are accepted.
func (m *Model) Validate(record kvstore.Record) error {
	return m.validateNames(record, m.FieldNames())
}

func (m *Model) validateNames(record kvstore.Record, names []string) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, name := range names {
		field, modeled := m.Fields[name]
		value, ok := record[name]
		if !modeled || !ok || value == nil || value == "" {
			continue
		}
		if err := m.validateField(name, field, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Model) validateField(name string, field Field, value any) error {
	switch field.Type {
	case TypeNumber:
		number, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: %s: %v is not a number", ErrInvalidValue, name, value)
		}
		if tag := boundsTag(field); tag != "" {
			if err := m.validate.Var(number, tag); err != nil {
				return fmt.Errorf("%w: %s: %v is outside %s", ErrInvalidValue, name, value, describeBounds(field))
			}
		}
	case TypeBoolean:
		if _, ok := toBool(value); !ok {
			return fmt.Errorf("%w: %s: %v is not a boolean", ErrInvalidValue, name, value)
		}
	case TypeEnum:
		text := fmt.Sprint(value)
		if err := m.validate.Var(text, oneOfTag(field.Options)); err != nil {
			return fmt.Errorf("%w: %s: %q is not one of %s", ErrInvalidValue, name, text, strings.Join(field.Options, ", "))
		}
	}
	return nil
}

// Apply merges form edits into a copy of record. Only fields the record
// already carries may change and _key is read-only. Only the edited fields
// are validated; stored values written before the model existed are left as
// they are.
func (m *Model) Apply(record kvstore.Record, edits map[string]string) (kvstore.Record, error) {
	out := make(kvstore.Record, len(record))
	for k, v := range record {
		out[k] = v
	}
	names := make([]string, 0, len(edits))
	for name := range edits {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := edits[name]
		if name == kvstore.KeyField {
			if current, _ := record[kvstore.KeyField].(string); current != raw {
				return nil, fmt.Errorf("%w: %s", ErrReadOnly, name)
			}
			continue
		}
		if _, ok := record[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		value, err := m.Coerce(name, raw)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	if err := m.validateNames(out, names); err != nil {
		return nil, err
	}
	return out, nil
}

// CoerceRecords converts the string values of uploaded records into their
// modeled types and validates the result. Row numbers in errors are 1-based
// and count data rows only.
func (m *Model) CoerceRecords(rows []kvstore.Record) ([]kvstore.Record, error) {
	if m == nil {
		return rows, nil
	}
	out := make([]kvstore.Record, 0, len(rows))
	for i, row := range rows {
		converted := make(kvstore.Record, len(row))
		for name, value := range row {
			raw, isString := value.(string)
			if !isString {
				converted[name] = value
				continue
			}
			typed, err := m.Coerce(name, raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			converted[name] = typed
		}
		if err := m.Validate(converted); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

func boundsTag(field Field) string {
	var parts []string
	if field.Min != nil {
		parts = append(parts, "min="+strconv.FormatFloat(*field.Min, 'f', -1, 64))
	}
	if field.Max != nil {
		parts = append(parts, "max="+strconv.FormatFloat(*field.Max, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func describeBounds(field Field) string {
	lo, hi := "-inf", "+inf"
	if field.Min != nil {
		lo = strconv.FormatFloat(*field.Min, 'f', -1, 64)
	}
	if field.Max != nil {
		hi = strconv.FormatFloat(*field.Max, 'f', -1, 64)
	}
	return "[" + lo + ", " + hi + "]"
}

func oneOfTag(options []string) string {
	quoted := make([]string, 0, len(options))
	for _, option := range options {
		if strings.ContainsAny(option, " \t") {
			option = "'" + option + "'"
		}
		quoted = append(quoted, option)
	}
	return "oneof=" + strings.Join(quoted, " ")
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}
