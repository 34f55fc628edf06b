package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

const usageLine = "colstorm <connection_string_file> <DDL|DML> <sql_file> <worker_count> <repeat_count>"

// RootCmd represents the base command when called without any subcommands
var RootCmd = NewRootCmd()

// NewRootCmd builds the colstorm command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     usageLine,
		Short:   "Concurrent SQL load generator for columnar databases",
		Version: version,
		Long: `colstorm opens a fixed pool of database sessions and executes one SQL
statement repeatedly from concurrent workers, reporting per-worker progress,
failures, latency percentiles and a pass/fail verdict.

Schema mode (DDL) runs the statement exactly once on a single session:
  colstorm clickhouse.conn DDL create_table.sql 1 1

Mutation mode (DML) runs worker_count workers, each executing the statement
repeat_count times on its own session:
  colstorm clickhouse.conn DML insert.sql 8 5000

Every argument is also a flag (--conn-file, --mode, --sql-file, --workers,
--repeat), a COLSTORM_* environment variable, or a key in a --config profile.`,
		Args:          validateArgs,
		SilenceErrors: true,
		RunE:          runLoad,
	}

	addRunFlags(cmd)
	cmd.AddCommand(newDriversCmd())
	return cmd
}

// validateArgs accepts either no positional arguments (everything from flags,
// environment or profile) or all five.
func validateArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 5 {
		return fmt.Errorf("expected 5 arguments, got %d\nusage: %s", len(args), usageLine)
	}
	return nil
}

// reportedError marks an error the console has already shown.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

func reported(err error) error {
	return &reportedError{err: err}
}

// errRunFailed is returned when a run completed but did not pass.
var errRunFailed = errors.New("run did not pass")

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.Main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return execute(RootCmd)
}

func execute(cmd *cobra.Command) error {
	err := cmd.Execute()
	if err == nil {
		return nil
	}

	var shown *reportedError
	if !errors.As(err, &shown) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.RedString("Error:"), err)
	}
	return err
}
