package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// LoadConnectionString reads the driver connection string from the first line
// of path.
func LoadConnectionString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{
			Field:   "conn-file",
			Message: fmt.Sprintf("cannot open connection string file %s", path),
			Err:     err,
		}
	}

	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", &Error{
			Field:   "conn-file",
			Message: fmt.Sprintf("connection string file %s is empty", path),
		}
	}

	return line, nil
}

// LoadStatement reads the whole SQL file at path.
func LoadStatement(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{
			Field:   "sql-file",
			Message: fmt.Sprintf("cannot open SQL file %s", path),
			Err:     err,
		}
	}

	stmt := strings.TrimSpace(string(data))
	if stmt == "" {
		return "", &Error{
			Field:   "sql-file",
			Message: fmt.Sprintf("SQL file %s is empty", path),
		}
	}

	return stmt, nil
}

// LoadProfile reads a run profile from a file and validates it against the
// profile schema.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The returned map uses the same keys as the command-line flags and can be
// merged into viper.
func LoadProfile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{
			Field:   "config",
			Message: fmt.Sprintf("cannot read profile %s", path),
			Err:     err,
		}
	}

	return ParseProfile(data, path)
}

// ParseProfile parses profile data. The format is taken from the extension of
// path and defaults to YAML.
func ParseProfile(data []byte, path string) (map[string]interface{}, error) {
	var raw interface{}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &Error{Field: "config", Message: "failed to parse JSON profile", Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &Error{Field: "config", Message: "failed to parse YAML profile", Err: err}
		}
	}

	if raw == nil {
		return map[string]interface{}{}, nil
	}

	// The schema validator works on JSON-decoded values, so normalise YAML
	// scalars (ints, nested maps) through a JSON round trip.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, &Error{Field: "config", Message: "profile contains values that cannot be represented as JSON", Err: err}
	}

	var doc interface{}
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, &Error{Field: "config", Message: "failed to normalise profile", Err: err}
	}

	if err := validateProfile(doc); err != nil {
		return nil, err
	}

	profile, ok := doc.(map[string]interface{})
	if !ok {
		return nil, &Error{Field: "config", Message: "profile must be a mapping of settings"}
	}
	return profile, nil
}

// validateProfile checks a decoded profile against ProfileSchema.
func validateProfile(doc interface{}) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profile.json", strings.NewReader(ProfileSchema)); err != nil {
		return fmt.Errorf("invalid profile schema: %w", err)
	}

	schema, err := compiler.Compile("profile.json")
	if err != nil {
		return fmt.Errorf("invalid profile schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		errs := &ValidationErrors{}
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			collectSchemaErrors(verr, errs)
		}
		if !errs.HasErrors() {
			errs.Add("config", err.Error())
		}
		return errs
	}

	return nil
}

// collectSchemaErrors flattens the leaf causes of a schema validation error.
func collectSchemaErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		field := strings.TrimPrefix(err.InstanceLocation, "/")
		if field == "" {
			field = "config"
		}
		errs.Add(field, err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}
