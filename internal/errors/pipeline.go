package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind string

const (
	// KindValidation is a caller error: unknown dataset, bad frequency, nothing survives filtering
	KindValidation Kind = "validation"
	// KindUpstream is an I/O collaborator failure, propagated without retry
	KindUpstream Kind = "upstream"
)

// PipelineError is returned by every pipeline stage that fails a call
type PipelineError struct {
	Kind      Kind
	Component string
	Message   string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Component != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Kind, e.Component, e.Message)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap keeps the collaborator's own error reachable
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// WithContext attaches a diagnostic key/value
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewValidation creates a validation failure for a component
func NewValidation(component, format string, args ...interface{}) *PipelineError {
	return &PipelineError{
		Kind:      KindValidation,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	}
}

// NewUpstream wraps a collaborator failure
func NewUpstream(component, message string, cause error) *PipelineError {
	return &PipelineError{
		Kind:      KindUpstream,
		Component: component,
		Message:   message,
		Cause:     cause,
	}
}

// IsValidation reports whether err is (or wraps) a validation failure
func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

// IsUpstream reports whether err is (or wraps) an upstream failure
func IsUpstream(err error) bool {
	return kindOf(err) == KindUpstream
}

func kindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
