package common

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, fmt.Sprint(e.Value), e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors. Rules after the first failing one are skipped.
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
			break
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	messages := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Err returns nil, or an INVALID_ARGUMENT AppError wrapping ErrInvalidInput.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError("INVALID_ARGUMENT", v.ErrorMessage(), ErrInvalidInput)
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	}
	return nil
}

// ExistingDirectory fails unless value is a path to an existing directory.
func ExistingDirectory(fieldName string, value interface{}) *ValidationError {
	path, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	if _, err := CheckDirectory(path); err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: err.Error()}
	}
	return nil
}

// CheckDirectory returns path unchanged if it names an existing directory.
func CheckDirectory(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory does not exist")
		}
		return "", err
	}
	if !st.IsDir() {
		return "", fmt.Errorf("not a directory")
	}
	return path, nil
}

// PositiveInt fails for ints (or *int) below 1. A nil *int passes.
func PositiveInt(fieldName string, value interface{}) *ValidationError {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case *int:
		if v == nil {
			return nil
		}
		n = *v
	default:
		return &ValidationError{Field: fieldName, Value: value, Message: "must be an integer"}
	}
	if n < 1 {
		return &ValidationError{Field: fieldName, Value: n, Message: "must be a positive integer"}
	}
	return nil
}

// OneOf builds a rule accepting only the given strings.
func OneOf(choices ...string) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		s, _ := value.(string)
		for _, c := range choices {
			if s == c {
				return nil
			}
		}
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: fmt.Sprintf("invalid choice (choose from %s)", strings.Join(choices, ", ")),
		}
	}
}
