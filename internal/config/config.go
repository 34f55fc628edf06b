// Package config resolves and validates the settings of a load run.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode selects how the statement is driven.
type Mode string

const (
	// ModeSchema runs the statement exactly once on a single connection.
	// Used for DDL, which is neither idempotent nor retryable.
	ModeSchema Mode = "DDL"

	// ModeMutation runs the statement repeatedly from many workers.
	ModeMutation Mode = "DML"
)

// Valid reports whether m is one of the recognised modes.
func (m Mode) Valid() bool {
	return m == ModeSchema || m == ModeMutation
}

// String returns the mode token.
func (m Mode) String() string {
	return string(m)
}

// Defaults for optional settings.
const (
	DefaultProgressEvery  = 1000
	DefaultConnectTimeout = 30 * time.Second
)

// RunConfig is the fully resolved configuration of one load run.
type RunConfig struct {
	// ConnFile is the file the connection string was read from (may be empty
	// when ConnString was given inline).
	ConnFile string `json:"connFile,omitempty" yaml:"connFile,omitempty"`

	// ConnString is the driver connection string. Never serialized.
	ConnString string `json:"-" yaml:"-"`

	Mode Mode `json:"mode" yaml:"mode"`

	// SQLFile is the file the statement was read from.
	SQLFile string `json:"sqlFile,omitempty" yaml:"sqlFile,omitempty"`

	// Statement is the SQL text executed by every worker.
	Statement string `json:"statement" yaml:"statement"`

	Workers int `json:"workers" yaml:"workers"`
	Repeat  int `json:"repeat" yaml:"repeat"`

	// ProgressEvery controls how often a worker reports a successful
	// execution: at indices 0, ProgressEvery, 2*ProgressEvery, ...
	ProgressEvery int `json:"progressEvery" yaml:"progressEvery"`

	// FailFast stops the whole run at the first failed execution.
	FailFast bool `json:"failFast" yaml:"failFast"`

	// Rate caps executions per second across all workers; 0 means unpaced.
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// MaxErrorRate is the highest failure rate (0..1) that still passes.
	MaxErrorRate float64 `json:"maxErrorRate" yaml:"maxErrorRate"`

	// Thresholds are extra pass/fail expressions, "metric: expression".
	Thresholds []string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout"`
	ExecTimeout    time.Duration `json:"execTimeout,omitempty" yaml:"execTimeout,omitempty"`
}

// Error is a configuration problem found before any connection is attempted.
type Error struct {
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Field != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Field, msg)
	}
	return fmt.Sprintf("configuration error: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration error of any shape.
func IsConfigError(err error) bool {
	var cfgErr *Error
	var validationErrs *ValidationErrors
	return errors.As(err, &cfgErr) || errors.As(err, &validationErrs)
}

// ParseMode parses a mode token. Only DDL and DML are accepted, exactly as
// written; surrounding whitespace is ignored.
func ParseMode(s string) (Mode, error) {
	switch strings.TrimSpace(s) {
	case string(ModeSchema):
		return ModeSchema, nil
	case string(ModeMutation):
		return ModeMutation, nil
	default:
		return "", &Error{
			Field:   "mode",
			Message: fmt.Sprintf("invalid mode %q: must be DDL or DML", s),
		}
	}
}

// ParseCount parses a positional numeric argument such as the worker count.
func ParseCount(field, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &Error{
			Field:   field,
			Message: fmt.Sprintf("%s must be a whole number, got %q", field, s),
		}
	}
	return n, nil
}
