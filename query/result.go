package query

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Mode selects how Run shapes a statement's outcome.
type Mode int

const (
	// ModeRows returns every row as a column to value mapping.
	ModeRows Mode = iota
	// ModeExecute returns the rows-affected count without reading rows.
	ModeExecute
	// ModeArrayFirst returns the first column of every row.
	ModeArrayFirst
	// ModeValueFirst returns the first column of the first row.
	ModeValueFirst
)

var modeNames = map[Mode]string{
	ModeRows:       "rows",
	ModeExecute:    "execute",
	ModeArrayFirst: "array_first",
	ModeValueFirst: "value_first",
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return "invalid"
}

func (m Mode) valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode maps a mode name to a Mode. The empty name selects ModeRows.
func ParseMode(name string) (Mode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ModeRows, nil
	}
	for m, s := range modeNames {
		if s == n {
			return m, nil
		}
	}
	return 0, &InvalidModeError{Mode: -1, Name: name}
}

// Row maps column names to values. Text the driver returned as []byte is
// stored as string.
type Row map[string]any

// Exec is the outcome of a statement run with ModeExecute.
type Exec struct {
	RowsAffected int64
	// LastInsertID is zero when the driver does not report one.
	LastInsertID int64
}

// Result holds the shaped outcome of Run. Only the fields that belong to
// Mode are set.
type Result struct {
	Mode   Mode
	Rows   []Row
	Values []any
	Value  any
	Found  bool
	Exec   Exec
}

// Run builds stmt, prepares it on the connection, executes it and shapes
// the outcome according to mode. Errors are never retried.
func (w *Wrapper) Run(ctx context.Context, stmt Statement, mode Mode) (*Result, error) {
	if !mode.valid() {
		return nil, &InvalidModeError{Mode: mode}
	}
	text, args, err := w.SQL(stmt)
	if err != nil {
		w.log.Debug().Err(err).Msg("Statement rejected by builder")
		return nil, err
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	w.log.Trace().Str("sql", text).Int("args", len(args)).Str("mode", mode.String()).Msg("Executing statement")

	prepared, err := w.conn.PrepareContext(ctx, text)
	if err != nil {
		w.log.Debug().Err(err).Str("sql", text).Msg("Prepare failed")
		return nil, &PrepareError{SQL: text, Err: err}
	}
	defer prepared.Close()

	if mode == ModeExecute {
		res, err := prepared.ExecContext(ctx, args...)
		if err != nil {
			w.log.Debug().Err(err).Str("sql", text).Msg("Execute failed")
			return nil, &ExecuteError{SQL: text, Err: err}
		}
		out := &Result{Mode: mode}
		out.Exec.RowsAffected, _ = res.RowsAffected()
		out.Exec.LastInsertID, _ = res.LastInsertId()
		return out, nil
	}

	rows, err := prepared.QueryContext(ctx, args...)
	if err != nil {
		w.log.Debug().Err(err).Str("sql", text).Msg("Execute failed")
		return nil, &ExecuteError{SQL: text, Err: err}
	}
	defer rows.Close()

	out, err := shape(rows, mode)
	if err != nil {
		return nil, &ExecuteError{SQL: text, Err: err}
	}
	return out, nil
}

func shape(rows *sql.Rows, mode Mode) (*Result, error) {
	out := &Result{Mode: mode}
	switch mode {
	case ModeRows:
		for rows.Next() {
			r := Row{}
			if err := sqlx.MapScan(rows, r); err != nil {
				return nil, err
			}
			for k, v := range r {
				r[k] = normalize(v)
			}
			out.Rows = append(out.Rows, r)
		}
	case ModeArrayFirst:
		for rows.Next() {
			v, err := scanFirst(rows)
			if err != nil {
				return nil, err
			}
			out.Values = append(out.Values, v)
		}
	case ModeValueFirst:
		if rows.Next() {
			v, err := scanFirst(rows)
			if err != nil {
				return nil, err
			}
			out.Value, out.Found = v, true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanFirst(rows *sql.Rows) (any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return normalize(vals[0]), nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
