package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *RunConfig {
	return &RunConfig{
		ConnString:     "clickhouse://localhost:9000/default",
		Mode:           ModeMutation,
		Statement:      "INSERT INTO t VALUES (1)",
		Workers:        4,
		Repeat:         100,
		ProgressEvery:  DefaultProgressEvery,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "field and message",
			err:      &Error{Field: "workers", Message: "must be positive"},
			expected: "configuration error (workers): must be positive",
		},
		{
			name:     "no field",
			err:      &Error{Message: "bad"},
			expected: "configuration error: bad",
		},
		{
			name:     "wrapped error only",
			err:      &Error{Field: "sql-file", Err: errors.New("permission denied")},
			expected: "configuration error (sql-file): permission denied",
		},
		{
			name:     "message and wrapped error",
			err:      &Error{Field: "sql-file", Message: "cannot open", Err: errors.New("permission denied")},
			expected: "configuration error (sql-file): cannot open: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RunConfig)
		field  string
	}{
		{"missing connection string", func(c *RunConfig) { c.ConnString = "  " }, "conn-string"},
		{"invalid mode", func(c *RunConfig) { c.Mode = "DQL" }, "mode"},
		{"empty statement", func(c *RunConfig) { c.Statement = "\n" }, "statement"},
		{"zero workers", func(c *RunConfig) { c.Workers = 0 }, "workers"},
		{"negative workers", func(c *RunConfig) { c.Workers = -2 }, "workers"},
		{"zero repeat", func(c *RunConfig) { c.Repeat = 0 }, "repeat"},
		{"negative repeat", func(c *RunConfig) { c.Repeat = -1 }, "repeat"},
		{"zero progress interval", func(c *RunConfig) { c.ProgressEvery = 0 }, "progress-every"},
		{"error rate above one", func(c *RunConfig) { c.MaxErrorRate = 1.5 }, "max-error-rate"},
		{"negative connect timeout", func(c *RunConfig) { c.ConnectTimeout = -time.Second }, "connect-timeout"},
		{"negative exec timeout", func(c *RunConfig) { c.ExecTimeout = -time.Second }, "exec-timeout"},
		{"threshold without metric", func(c *RunConfig) { c.Thresholds = []string{"p95 < 10ms"} }, "thresholds[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !IsConfigError(err) {
				t.Errorf("IsConfigError(%v) = false", err)
			}

			var errs *ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("Validate() error type = %T, want *ValidationErrors", err)
			}
			if len(errs.Errors) != 1 || errs.Errors[0].Field != tt.field {
				t.Errorf("Validate() errors = %v, want one error on %s", errs, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &RunConfig{}

	err := cfg.Validate()
	var errs *ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Validate() error type = %T, want *ValidationErrors", err)
	}
	if len(errs.Errors) < 5 {
		t.Errorf("Validate() returned %d errors, want at least 5", len(errs.Errors))
	}
	if !strings.Contains(err.Error(), "configuration errors:") {
		t.Errorf("Error() = %q, want multi-error header", err.Error())
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"DDL", ModeSchema, false},
		{" DML ", ModeMutation, false},
		{"DML\n", ModeMutation, false},
		{"ddl", "", true},
		{"Dml", "", true},
		{"schema", "", true},
		{"Mutation", "", true},
		{"DQL", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if err != nil && !IsConfigError(err) {
				t.Errorf("ParseMode(%q) error is not a configuration error", tt.input)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	n, err := ParseCount("workers", "12")
	if err != nil || n != 12 {
		t.Errorf("ParseCount(12) = %d, %v", n, err)
	}

	_, err = ParseCount("workers", "twelve")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("ParseCount(twelve) error = %v, want *Error", err)
	}
	if cfgErr.Field != "workers" {
		t.Errorf("Field = %q, want workers", cfgErr.Field)
	}
}
