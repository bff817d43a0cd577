package config

import "fmt"

// LoadError wraps a failure to read or parse a configuration file.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a LoadError for the given file.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

// ValidationError reports an invalid configuration section.
type ValidationError struct {
	Section string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s config: %s", e.Section, e.Message)
}

// NewValidationError creates a ValidationError for the given section.
func NewValidationError(section, message string) *ValidationError {
	return &ValidationError{Section: section, Message: message}
}
