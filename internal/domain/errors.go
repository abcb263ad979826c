package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrReferential        = errors.New("referential integrity violation")
	ErrAlreadyInvalidated = errors.New("edge already invalidated")
	ErrAlreadySuperseded  = errors.New("memory already superseded")
	ErrCycleDetected      = errors.New("supersession cycle detected")

	// ErrStorage marks a failure of the underlying store rather than a domain outcome.
	ErrStorage = errors.New("storage failure")
)

// ValidationError lists the rejected fields. It matches ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
