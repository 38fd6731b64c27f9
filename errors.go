package devutils

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an error
type ErrorType string

const (
	// ErrorTypeConfig represents configuration or environment errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeFS represents file system-related errors
	ErrorTypeFS ErrorType = "filesystem"
	// ErrorTypeTool represents external tool invocation errors
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
)

// AppError is a custom error type that provides context about the error
type AppError struct {
	Type    ErrorType // The category of the error
	Message string    // A human-readable error message
	Err     error     // The underlying error, if any
	File    string    // The file related to the error, if applicable
	Details string    // Additional details about the error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error
func NewConfigError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeConfig,
		Message: message,
		Err:     err,
	}
}

// NewFSError creates a new file system error
func NewFSError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeFS,
		Message: message,
		Err:     err,
	}
}

// NewToolError creates a new external tool error
func NewToolError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTool,
		Message: message,
		Err:     err,
	}
}

// NewCacheError creates a new cache error
func NewCacheError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeCache,
		Message: message,
		Err:     err,
	}
}

// WithFile adds file information to an error if it is an AppError
func WithFile(err error, file string) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		appErr.File = file
	}
	return err
}

// WithDetails adds additional details to an error if it is an AppError
func WithDetails(err error, details string) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		appErr.Details = details
	}
	return err
}

// GetErrorInfo extracts the AppError from an error chain, if present
func GetErrorInfo(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
