package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wesleyorama2/colstorm/internal/config"
)

const envPrefix = "COLSTORM"

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	// Positional equivalents
	flags.String("conn-file", "", "File whose first line is the connection string")
	flags.String("conn-string", "", "Connection string (alternative to the connection string file)")
	flags.String("mode", "", "Execution mode: DDL (schema) or DML (mutation)")
	flags.String("sql-file", "", "File containing the SQL statement")
	flags.String("statement", "", "SQL statement (alternative to the SQL file)")
	flags.Int("workers", 1, "Number of concurrent workers (and pooled sessions)")
	flags.Int("repeat", 1, "Executions per worker")

	// Run behaviour
	flags.StringP("config", "c", "", "Run profile (.yaml, .yml or .json)")
	flags.Int("progress-every", config.DefaultProgressEvery, "Report every Nth successful execution per worker")
	flags.Bool("fail-fast", false, "Stop all workers at the first failed execution")
	flags.Float64("rate", 0, "Cap executions per second across all workers (0 = unpaced)")
	flags.Float64("max-error-rate", 0, "Highest failed-execution rate (0..1) that still passes")
	flags.StringArray("threshold", nil, "Pass/fail threshold, e.g. 'exec_duration: p95 < 50ms' (repeatable)")
	flags.Duration("connect-timeout", config.DefaultConnectTimeout, "Timeout for opening each session")
	flags.Duration("exec-timeout", 0, "Timeout for each execution (0 = none)")

	// Output
	flags.StringP("output", "o", "", "Write a report file (.json, .yaml or .xml)")
	flags.String("format", "", "Report format: json, yaml or junit (default: from --output extension)")
	flags.Bool("json", false, "Write the JSON report to stdout; console output goes to stderr")
	flags.BoolP("quiet", "q", false, "Print only the final verdict and errors")
	flags.Bool("no-color", false, "Disable colored output")
	flags.BoolP("verbose", "v", false, "Enable diagnostic logging on stderr")
}

// newViper resolves settings with the precedence flag > environment >
// profile > flag default. The profile is named by --config or COLSTORM_CONFIG.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		profile, err := config.LoadProfile(path)
		if err != nil {
			return nil, err
		}
		// The profile holds a list under "thresholds"; the flag is singular.
		if list, ok := profile["thresholds"]; ok {
			profile["threshold"] = list
			delete(profile, "thresholds")
		}
		if err := v.MergeConfigMap(profile); err != nil {
			return nil, &config.Error{Field: "config", Message: fmt.Sprintf("cannot apply profile %s", path), Err: err}
		}
	}

	return v, nil
}

// resolveRunConfig builds the run configuration from v, letting the five
// positional arguments override their flag equivalents. Files are read here;
// the result still needs Validate.
func resolveRunConfig(v *viper.Viper, args []string) (config.RunConfig, error) {
	cfg := config.RunConfig{
		ConnFile:       v.GetString("conn-file"),
		ConnString:     v.GetString("conn-string"),
		SQLFile:        v.GetString("sql-file"),
		Statement:      v.GetString("statement"),
		Workers:        v.GetInt("workers"),
		Repeat:         v.GetInt("repeat"),
		ProgressEvery:  v.GetInt("progress-every"),
		FailFast:       v.GetBool("fail-fast"),
		Rate:           v.GetFloat64("rate"),
		MaxErrorRate:   v.GetFloat64("max-error-rate"),
		Thresholds:     resolveThresholds(v),
		ConnectTimeout: v.GetDuration("connect-timeout"),
		ExecTimeout:    v.GetDuration("exec-timeout"),
	}
	modeToken := v.GetString("mode")

	if len(args) == 5 {
		cfg.ConnFile, cfg.ConnString = args[0], ""
		modeToken = args[1]
		cfg.SQLFile, cfg.Statement = args[2], ""

		var err error
		if cfg.Workers, err = config.ParseCount("workers", args[3]); err != nil {
			return cfg, err
		}
		if cfg.Repeat, err = config.ParseCount("repeat", args[4]); err != nil {
			return cfg, err
		}
	}

	if cfg.ConnString == "" {
		if cfg.ConnFile == "" {
			return cfg, &config.Error{Field: "conn-file", Message: "a connection string file or --conn-string is required"}
		}
		connString, err := config.LoadConnectionString(cfg.ConnFile)
		if err != nil {
			return cfg, err
		}
		cfg.ConnString = connString
	}

	mode, err := config.ParseMode(modeToken)
	if err != nil {
		return cfg, err
	}
	cfg.Mode = mode

	if cfg.Statement == "" {
		if cfg.SQLFile == "" {
			return cfg, &config.Error{Field: "sql-file", Message: "a SQL file or --statement is required"}
		}
		statement, err := config.LoadStatement(cfg.SQLFile)
		if err != nil {
			return cfg, err
		}
		cfg.Statement = statement
	}

	return cfg, nil
}

// resolveThresholds reads the threshold list. Environment values are a single
// string, separated by semicolons.
func resolveThresholds(v *viper.Viper) []string {
	if s, ok := v.Get("threshold").(string); ok {
		var list []string
		for _, part := range strings.Split(s, ";") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
		return list
	}
	return v.GetStringSlice("threshold")
}

// durationSetting formats a timeout for logging.
func durationSetting(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}
