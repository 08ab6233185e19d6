package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/export"
	"gorm.io/gorm"
)

// Common service errors
var (
	// ErrNotFound is returned when a resource is not found in the tenant
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden is returned when the caller lacks a permission or tenant access
	ErrForbidden = auth.ErrForbidden

	// ErrTenantRequired is returned when an operation runs without a tenant scope
	ErrTenantRequired = auth.ErrNoTenantScope

	// ErrUnauthorized is returned when no user is authenticated
	ErrUnauthorized = auth.ErrNoUser

	// ErrUnknownTenant is returned when a tenant slug or ID does not exist
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrUnsupportedFormat is returned for export formats that are not implemented
	ErrUnsupportedFormat = export.ErrUnsupportedFormat

	// ErrInvalidDate is returned for export dates that are not YYYY-MM-DD
	ErrInvalidDate = export.ErrInvalidDate
)

// ValidationError carries per-field messages keyed by JSON field name
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError for one field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field, keeping the first message per field
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// HasErrors reports whether any field failed
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil returns e when it holds errors, nil otherwise
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InvariantError is returned when a change would break a state invariant,
// such as a split that empties its source batch
type InvariantError struct {
	Reason string
}

func invariantf(format string, args ...interface{}) *InvariantError {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) Error() string {
	return "state invariant violated: " + e.Reason
}

// ConflictError is returned when a delete is blocked by dependent records
type ConflictError struct {
	Resource   string
	Dependents map[string]int64
}

func (e *ConflictError) Error() string {
	keys := make([]string, 0, len(e.Dependents))
	for k, n := range e.Dependents {
		if n > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", e.Dependents[k], k))
	}
	return fmt.Sprintf("cannot delete %s: referenced by %s", e.Resource, strings.Join(parts, ", "))
}

// conflictIfAny returns a ConflictError when any dependent count is positive
func conflictIfAny(resource string, dependents map[string]int64) error {
	for _, n := range dependents {
		if n > 0 {
			return &ConflictError{Resource: resource, Dependents: dependents}
		}
	}
	return nil
}

// notFound translates gorm.ErrRecordNotFound into ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
