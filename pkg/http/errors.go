package http

import (
	"fmt"
	"net/http"
)

// AppError is an application error carrying its HTTP status.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", fmt.Sprintf(format, a...), http.StatusNotFound)
}

func BadRequestErrorf(field, format string, a ...interface{}) *AppError {
	return NewAppError("ERR_BAD_REQUEST", field, fmt.Sprintf(format, a...), http.StatusBadRequest)
}

// ConflictErrorf is used when the request is valid but the current state rejects it.
func ConflictErrorf(format string, a ...interface{}) *AppError {
	return NewAppError("ERR_CONFLICT", "", fmt.Sprintf(format, a...), http.StatusConflict)
}

func InternalError(err error) *AppError {
	return NewAppError("ERR_INTERNAL", "", "Something went wrong", http.StatusInternalServerError).WithError(err)
}
