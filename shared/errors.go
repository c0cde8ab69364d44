package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration  ErrorCategory = "configuration"
	ErrorCategoryNetwork        ErrorCategory = "network"
	ErrorCategoryDatabase       ErrorCategory = "database"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryResource       ErrorCategory = "resource"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryAbuse          ErrorCategory = "abuse"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryAuthorization  ErrorCategory = "authorization"
)

// Postgres SQLSTATE codes the ledger reacts to
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches service errors by category and code so copies of a sentinel
// still satisfy errors.Is
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"timestamp":        e.Timestamp,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// WrapError wraps an existing error with service error context
func WrapError(err error, category ErrorCategory, code, serviceName, operation string, retryable bool) *ServiceError {
	if err == nil {
		return nil
	}

	// If it's already a ServiceError, copy it with the new context
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		wrapped := *serviceErr
		wrapped.ServiceName = serviceName
		wrapped.Operation = operation
		return &wrapped
	}

	return NewServiceError(category, code, err.Error(), serviceName, operation, retryable, err)
}

// ClassifyPostgresError turns driver-level constraint violations into tagged
// service errors. Anything else is wrapped as a database error.
func ClassifyPostgresError(err error, serviceName, operation string) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgForeignKeyViolation:
			return NewServiceError(ErrorCategoryValidation, "INVALID_RELATION",
				"related job or candidate does not exist", serviceName, operation, false, err).
				WithDetails(pqErr.Detail)
		case pgUniqueViolation:
			return NewServiceError(ErrorCategoryConflict, "DUPLICATE",
				"record already exists", serviceName, operation, false, err).
				WithDetails(pqErr.Detail)
		}
	}

	return NewServiceError(ErrorCategoryDatabase, "DATABASE_ERROR", err.Error(), serviceName, operation, IsRetryableError(err), err)
}

// HTTPStatus maps an error to the status code handlers should reply with
func HTTPStatus(err error) int {
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		return http.StatusInternalServerError
	}

	switch serviceErr.Category {
	case ErrorCategoryValidation:
		return http.StatusBadRequest
	case ErrorCategoryResource:
		return http.StatusNotFound
	case ErrorCategoryConflict:
		return http.StatusConflict
	case ErrorCategoryAbuse:
		return http.StatusTooManyRequests
	case ErrorCategoryAuthentication:
		return http.StatusUnauthorized
	case ErrorCategoryAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the service error code, or INTERNAL_ERROR for plain errors
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}
	return "INTERNAL_ERROR"
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.IsRetryable()
	}

	// Default heuristics for standard errors
	errorMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "service unavailable", "too many requests",
		"network", "dns", "socket",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errorMsg, pattern) {
			return true
		}
	}

	return false
}
