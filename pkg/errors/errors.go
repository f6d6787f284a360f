// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Heuris.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Heuris errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeVerification indicates a final answer failed citation verification.
	CodeVerification ErrorCode = "VERIFICATION_FAILED"
)

// HeurisError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type HeurisError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *HeurisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *HeurisError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *HeurisError) MarshalJSON() ([]byte, error) {
	type Alias HeurisError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new HeurisError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *HeurisError {
	return &HeurisError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// NotFound creates a NOT_FOUND error. These are always recoverable: the
// loop feeds them back to the model as a corrective message.
func NotFound(msg string) *HeurisError {
	return New(CodeNotFound, msg, nil).WithRecoverable(true)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *HeurisError) WithContext(key string, value interface{}) *HeurisError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *HeurisError) WithRecoverable(recoverable bool) *HeurisError {
	e.Recoverable = recoverable
	return e
}

// AsHeurisError attempts to convert an error to a HeurisError.
// Returns the error as HeurisError if it is one, or wraps it otherwise.
func AsHeurisError(err error) *HeurisError {
	if err == nil {
		return nil
	}
	if he, ok := err.(*HeurisError); ok {
		return he
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether err is a HeurisError with the given code.
func IsCode(err error, code ErrorCode) bool {
	he, ok := err.(*HeurisError)
	return ok && he.Code == code
}
