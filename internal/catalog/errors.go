package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrStoreUnavailable          = errors.New("product store unavailable")
	ErrExternalSourceUnavailable = errors.New("external content source unavailable")
	ErrDuplicateExternalID       = errors.New("duplicate external id")
	ErrValidation                = errors.New("validation failed")
	ErrProductNotFound           = errors.New("product not found")
)

// ValidationError lists the offending fields and the rule each one broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, rule string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
