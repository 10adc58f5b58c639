package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for record and startup failures
var (
	// ErrMalformedRecord is returned when an input line is not valid JSON
	ErrMalformedRecord = errors.New("malformed record")

	// ErrNoScanData is returned when a record carries no usable scan results
	ErrNoScanData = errors.New("no scan data")

	// ErrNoIdentity is returned when the selected hash is missing from a record
	ErrNoIdentity = errors.New("sample identity missing")

	// ErrSampleFailed is returned when tagging a decoded sample fails
	ErrSampleFailed = errors.New("sample processing failed")

	// ErrInvalidConfig is returned when run options are inconsistent
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RecordError describes a failure tied to one input line
type RecordError struct {
	Source   string
	Line     int
	SampleID string
	Err      error
}

func (e *RecordError) Error() string {
	if e.SampleID != "" {
		return fmt.Sprintf("%s:%d: sample %s: %v", e.Source, e.Line, e.SampleID, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError creates a new RecordError
func NewRecordError(source string, line int, sampleID string, err error) *RecordError {
	return &RecordError{Source: source, Line: line, SampleID: sampleID, Err: err}
}

// ConfigError represents a rejected option with context
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// PanicError wraps a value recovered while processing a sample
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Is(target error) bool {
	return target == ErrSampleFailed
}
