package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable indicates a required service is unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrPythonExecution indicates Python code execution failed
	ErrPythonExecution = errors.New("python execution failed")

	// ErrLLMCommunication indicates LLM communication failed
	ErrLLMCommunication = errors.New("llm communication failed")

	// ErrNoAgent indicates a question was asked before a dataset was loaded
	ErrNoAgent = errors.New("no agent for session")

	// ErrUnknownModel indicates a model outside the configured list was requested
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnknownSegment indicates a stored message segment has no renderer
	ErrUnknownSegment = errors.New("unknown content type")
)

// WrapError wraps an error with context message
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsServiceUnavailable checks if error is a service unavailable error
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsNoAgent checks if error means the session has no dataset loaded yet
func IsNoAgent(err error) bool {
	return errors.Is(err, ErrNoAgent)
}
