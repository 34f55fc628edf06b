package dbconn

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/duckdb/duckdb-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/snowflakedb/gosnowflake"
)

// ExecError is a failed statement execution with the server-reported code
// extracted from the driver error, when the driver supplies one.
type ExecError struct {
	Driver  string
	Code    string
	State   string
	Message string
	Err     error
}

func (e *ExecError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Code != "" && e.State != "":
		return fmt.Sprintf("%s error %s (%s): %s", e.Driver, e.Code, e.State, msg)
	case e.Code != "":
		return fmt.Sprintf("%s error %s: %s", e.Driver, e.Code, msg)
	case e.State != "":
		return fmt.Sprintf("%s error (%s): %s", e.Driver, e.State, msg)
	default:
		return fmt.Sprintf("%s error: %s", e.Driver, msg)
	}
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the execution failed because its deadline passed.
func (e *ExecError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Classify wraps a driver error in an ExecError. It returns nil for a nil
// error and returns err unchanged if it already is an ExecError.
func Classify(driverName string, err error) error {
	if err == nil {
		return nil
	}

	var existing *ExecError
	if errors.As(err, &existing) {
		return err
	}

	execErr := &ExecError{Driver: driverName, Err: err}

	var (
		chErr   *clickhouse.Exception
		pgErr   *pgconn.PgError
		myErr   *mysql.MySQLError
		liteErr sqlite3.Error
		sfErr   *gosnowflake.SnowflakeError
		duckErr *duckdb.Error
	)

	switch {
	case errors.As(err, &chErr):
		execErr.Code = strconv.Itoa(int(chErr.Code))
		execErr.State = chErr.Name
		execErr.Message = chErr.Message
	case errors.As(err, &pgErr):
		execErr.State = pgErr.Code
		execErr.Message = pgErr.Message
	case errors.As(err, &myErr):
		execErr.Code = strconv.Itoa(int(myErr.Number))
		if myErr.SQLState != [5]byte{} {
			execErr.State = string(myErr.SQLState[:])
		}
		execErr.Message = myErr.Message
	case errors.As(err, &liteErr):
		execErr.Code = strconv.Itoa(int(liteErr.ExtendedCode))
		execErr.Message = liteErr.Error()
	case errors.As(err, &sfErr):
		execErr.Code = strconv.Itoa(sfErr.Number)
		execErr.State = sfErr.SQLState
		execErr.Message = sfErr.Message
	case errors.As(err, &duckErr):
		execErr.Code = strconv.Itoa(int(duckErr.Type))
		execErr.Message = duckErr.Msg
	}

	return execErr
}
