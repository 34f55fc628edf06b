package config

// ProfileSchema is the JSON schema for run profiles.
//
// Example YAML:
//
//	conn-file: ./clickhouse.conn
//	mode: DML
//	sql-file: ./insert.sql
//	workers: 8
//	repeat: 5000
//	max-error-rate: 0.001
//	thresholds:
//	  - "exec_duration: p95 < 50ms"
const ProfileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "conn-file":       {"type": "string"},
    "conn-string":     {"type": "string"},
    "mode":            {"type": "string", "enum": ["DDL", "DML"]},
    "sql-file":        {"type": "string"},
    "statement":       {"type": "string"},
    "workers":         {"type": "integer", "minimum": 1},
    "repeat":          {"type": "integer", "minimum": 1},
    "progress-every":  {"type": "integer", "minimum": 1},
    "fail-fast":       {"type": "boolean"},
    "rate":            {"type": "number", "minimum": 0},
    "max-error-rate":  {"type": "number", "minimum": 0, "maximum": 1},
    "thresholds":      {"type": "array", "items": {"type": "string", "pattern": ":"}},
    "connect-timeout": {"type": "string"},
    "exec-timeout":    {"type": "string"},
    "output":          {"type": "string"},
    "format":          {"type": "string", "enum": ["json", "yaml", "junit"]},
    "quiet":           {"type": "boolean"},
    "no-color":        {"type": "boolean"},
    "verbose":         {"type": "boolean"}
  }
}`
