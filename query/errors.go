package query

import (
	"fmt"

	"shopData/internal/db"
)

// QueryBuildError reports a statement description the builder could not
// translate, such as a malformed condition.
type QueryBuildError struct {
	Statement string
	Err       error
}

func (e *QueryBuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Statement, e.Err)
}

func (e *QueryBuildError) Unwrap() error { return e.Err }

// PrepareError reports a statement the driver refused to prepare.
type PrepareError struct {
	SQL string
	Err error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %q: %s", e.SQL, db.DriverMessage(e.Err))
}

func (e *PrepareError) Unwrap() error { return e.Err }

// ExecuteError reports a prepared statement that failed while executing or
// while its rows were being fetched.
type ExecuteError struct {
	SQL string
	Err error
}

func (e *ExecuteError) Error() string {
	return fmt.Sprintf("execute %q: %s", e.SQL, db.DriverMessage(e.Err))
}

func (e *ExecuteError) Unwrap() error { return e.Err }

// InvalidModeError reports an unknown result-shaping mode.
type InvalidModeError struct {
	Mode Mode
	Name string
}

func (e *InvalidModeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid result mode %q", e.Name)
	}
	return fmt.Sprintf("invalid result mode %d", int(e.Mode))
}
