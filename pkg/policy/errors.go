package policy

import (
	"errors"
	"fmt"
)

const (
	ErrorDisabled   = "disabled"
	ErrorCooldown   = "cooldown"
	ErrorBusy       = "busy"
	ErrorGeneration = "generation_failed"
	ErrorParse      = "parse_failed"
)

// Error is a categorized reason for skipping a decision.
type Error struct {
	Category string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError creates a categorized policy error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

func wrapError(category string, err error) error {
	return &Error{Category: category, Detail: err.Error(), Err: err}
}

// CategoryFromError returns the category of a policy error, or "" for other errors.
func CategoryFromError(err error) string {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return ""
}

// IsQuiet reports whether err is an expected skip that does not deserve a warning.
func IsQuiet(err error) bool {
	switch CategoryFromError(err) {
	case ErrorDisabled, ErrorCooldown, ErrorBusy:
		return true
	default:
		return false
	}
}
