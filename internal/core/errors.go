package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a token, title or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials covers both an unknown user and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation marks malformed input. ValidationErrors and RecordError wrap it.
	ErrValidation = errors.New("validation failed")
)

// ValidationErrors maps a formset row index to the problem found in that row.
// A row index of -1 is used for problems with the submission as a whole.
type ValidationErrors map[int]error

func (v ValidationErrors) Error() string {
	idx := make([]int, 0, len(v))
	for i := range v {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		if i < 0 {
			parts = append(parts, v[i].Error())
			continue
		}
		parts = append(parts, fmt.Sprintf("row %d: %v", i, v[i]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// For returns the error recorded for row i, if any.
func (v ValidationErrors) For(i int) error {
	return v[i]
}

// RecordError describes why a single mobile record was rejected.
type RecordError struct {
	Index int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("record %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is, or wraps, ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
