package review

import (
	"fmt"
	"strings"
)

// Violation is one failed field check.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failing field in a request so the
// caller can fix them in one pass.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
