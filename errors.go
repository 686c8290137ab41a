package permit

import (
	"fmt"
	"strings"
	"time"
)

// ViolationCode tags one violated delegation constraint.
type ViolationCode string

const (
	ViolationOwnership  ViolationCode = "ownership"
	ViolationCycle      ViolationCode = "cycle"
	ViolationDuration   ViolationCode = "duration"
	ViolationExpiry     ViolationCode = "expiry"
	ViolationEmptyScope ViolationCode = "empty_scope"
)

// Violation is one violated constraint within a validation failure.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

// ValidationFailure carries every constraint a rejected delegation violated.
// Validation never stops at the first problem, so callers can present all of
// them at once. A rejected grant is never partially applied.
type ValidationFailure struct {
	Violations []Violation
}

func (f *ValidationFailure) Error() string {
	msgs := make([]string, 0, len(f.Violations))
	for _, v := range f.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Code, v.Message))
	}
	return "delegation validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether the failure includes a violation with the given code.
func (f *ValidationFailure) Has(code ViolationCode) bool {
	for _, v := range f.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func (f *ValidationFailure) add(code ViolationCode, format string, args ...any) {
	f.Violations = append(f.Violations, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
}

// RateLimitError is returned when a caller exhausted its attempts. RetryAfter
// tells the caller when the window resets.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts for %s, retry in %s", e.Key, e.RetryAfter)
}
