// Package report writes the machine-readable record of a load run.
package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/colstorm/internal/config"
	"github.com/wesleyorama2/colstorm/internal/dbconn"
	"github.com/wesleyorama2/colstorm/internal/hoststats"
	"github.com/wesleyorama2/colstorm/internal/runner"
)

// Format is a report encoding.
type Format string

const (
	// FormatJSON writes indented JSON.
	FormatJSON Format = "json"
	// FormatYAML writes YAML.
	FormatYAML Format = "yaml"
	// FormatJUnit writes JUnit XML for CI systems.
	FormatJUnit Format = "junit"
)

// ParseFormat parses a --format value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "junit", "xml":
		return FormatJUnit, nil
	}
	return "", fmt.Errorf("unknown report format %q: must be json, yaml or junit", s)
}

// FormatFromPath picks a format from the file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".xml":
		return FormatJUnit
	default:
		return FormatJSON
	}
}

// Document is the report of one run.
type Document struct {
	RunID       string    `json:"runId" yaml:"runId"`
	Tool        string    `json:"tool" yaml:"tool"`
	Version     string    `json:"version" yaml:"version"`
	GeneratedAt time.Time `json:"generatedAt" yaml:"generatedAt"`

	Driver string `json:"driver" yaml:"driver"`
	// Target is the connection string with credentials masked.
	Target string           `json:"target" yaml:"target"`
	Config config.RunConfig `json:"config" yaml:"config"`

	Result *runner.Result    `json:"result,omitempty" yaml:"result,omitempty"`
	Host   *hoststats.Report `json:"host,omitempty" yaml:"host,omitempty"`

	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
	Passed bool   `json:"passed" yaml:"passed"`
}

// NewDocument starts a report for cfg with a fresh run id.
func NewDocument(version string, cfg config.RunConfig) *Document {
	driver, _, err := dbconn.Resolve(cfg.ConnString)
	if err != nil {
		driver = ""
	}

	return &Document{
		RunID:       uuid.NewString(),
		Tool:        "colstorm",
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		Driver:      driver,
		Target:      dbconn.Redact(cfg.ConnString),
		Config:      cfg,
	}
}

// Complete records the outcome. A run passes only when it returned no error
// and its result passed.
func (d *Document) Complete(result *runner.Result, host *hoststats.Report, runErr error) {
	d.Result = result
	d.Host = host
	d.Passed = runErr == nil && result != nil && result.Passed
	if runErr != nil {
		d.Error = runErr.Error()
	}
}
