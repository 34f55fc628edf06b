package config

import (
	"fmt"
	"strings"
)

// ValidationErrors is a collection of configuration errors.
type ValidationErrors struct {
	Errors []*Error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d configuration errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &Error{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the run configuration.
//
// Returns nil if valid, or a *ValidationErrors containing every problem found.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(c.ConnString) == "" {
		errs.Add("conn-string", "a connection string is required (connection string file or --conn-string)")
	}

	if !c.Mode.Valid() {
		errs.Add("mode", fmt.Sprintf("invalid mode %q: must be DDL or DML", c.Mode))
	}

	if strings.TrimSpace(c.Statement) == "" {
		errs.Add("statement", "the SQL statement is empty")
	}

	if c.Workers < 1 {
		errs.Add("workers", fmt.Sprintf("worker count must be at least 1, got %d", c.Workers))
	}

	if c.Repeat < 1 {
		errs.Add("repeat", fmt.Sprintf("repeat count must be at least 1, got %d", c.Repeat))
	}

	if c.ProgressEvery < 1 {
		errs.Add("progress-every", fmt.Sprintf("progress interval must be at least 1, got %d", c.ProgressEvery))
	}

	if c.Rate < 0 {
		errs.Add("rate", fmt.Sprintf("rate cannot be negative, got %g", c.Rate))
	}

	if c.MaxErrorRate < 0 || c.MaxErrorRate > 1 {
		errs.Add("max-error-rate", fmt.Sprintf("max error rate must be between 0 and 1, got %g", c.MaxErrorRate))
	}

	if c.ConnectTimeout < 0 {
		errs.Add("connect-timeout", "connect timeout cannot be negative")
	}

	if c.ExecTimeout < 0 {
		errs.Add("exec-timeout", "exec timeout cannot be negative")
	}

	for i, expr := range c.Thresholds {
		if !strings.Contains(expr, ":") {
			errs.Add(fmt.Sprintf("thresholds[%d]", i), fmt.Sprintf("expected 'metric: expression', got %q", expr))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
