package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"single line", "clickhouse://localhost:9000", "clickhouse://localhost:9000", false},
		{"first line only", "duckdb:/tmp/a.db\nignored\n", "duckdb:/tmp/a.db", false},
		{"windows line ending", "mysql:root@/db\r\n", "mysql:root@/db", false},
		{"surrounding space", "  pgx:host=localhost  \n", "pgx:host=localhost", false},
		{"empty file", "", "", true},
		{"blank first line", "\nclickhouse://x\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "conn.txt", tt.content)
			got, err := LoadConnectionString(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConnectionString_Missing(t *testing.T) {
	_, err := LoadConnectionString(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadStatement(t *testing.T) {
	path := writeFile(t, "stmt.sql", "\nINSERT INTO events\nSELECT number FROM numbers(10)\n\n")
	got, err := LoadStatement(path)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO events\nSELECT number FROM numbers(10)", got)

	_, err = LoadStatement(writeFile(t, "empty.sql", "  \n\t"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, err = LoadStatement(filepath.Join(t.TempDir(), "missing.sql"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestParseProfile_YAML(t *testing.T) {
	data := []byte(`
conn-file: ./ch.conn
mode: DML
sql-file: ./insert.sql
workers: 8
repeat: 5000
max-error-rate: 0.01
connect-timeout: 10s
thresholds:
  - "exec_duration: p95 < 50ms"
`)

	profile, err := ParseProfile(data, "profile.yaml")
	require.NoError(t, err)

	assert.Equal(t, "./ch.conn", profile["conn-file"])
	assert.Equal(t, "DML", profile["mode"])
	assert.EqualValues(t, 8, profile["workers"])
	assert.EqualValues(t, 5000, profile["repeat"])
	assert.Equal(t, "10s", profile["connect-timeout"])
	assert.Len(t, profile["thresholds"], 1)
}

func TestParseProfile_JSON(t *testing.T) {
	data := []byte(`{"conn-string": "duckdb:", "mode": "DDL", "statement": "CREATE TABLE t (id INT)"}`)

	profile, err := ParseProfile(data, "profile.json")
	require.NoError(t, err)
	assert.Equal(t, "duckdb:", profile["conn-string"])
	assert.Equal(t, "DDL", profile["mode"])
}

func TestParseProfile_Empty(t *testing.T) {
	profile, err := ParseProfile([]byte(""), "profile.yaml")
	require.NoError(t, err)
	assert.Empty(t, profile)
}

func TestParseProfile_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "wrokers: 3\n"},
		{"zero workers", "workers: 0\n"},
		{"non-numeric repeat", "repeat: lots\n"},
		{"invalid mode", "mode: DQL\n"},
		{"lower-case mode", "mode: dml\n"},
		{"error rate above one", "max-error-rate: 2\n"},
		{"unknown format", "format: xml\n"},
		{"not a mapping", "- a\n- b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.data), "profile.yml")
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "error %v should be a configuration error", err)
		})
	}
}

func TestParseProfile_MalformedYAML(t *testing.T) {
	_, err := ParseProfile([]byte("workers: [1, 2"), "profile.yaml")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestLoadProfile_NotFound(t *testing.T) {
	_, err := LoadProfile("/nonexistent/profile.yaml")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
