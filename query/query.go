// Package query translates structured statement descriptions into
// parameterized SQL with squirrel, runs them against a borrowed connection
// handle and shapes the result.
//
// A Wrapper holds no state besides its configuration: the handle, the
// placeholder format, an optional per-statement timeout and a logger. The
// handle is never closed, pooled or wrapped in a transaction here; pass a
// *sql.Tx to run inside one.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conn is the connection handle a Wrapper borrows. *sql.DB, *sql.Tx and
// *sql.Conn all satisfy it.
type Conn interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Wrapper builds and executes statements against a Conn.
type Wrapper struct {
	conn    Conn
	builder sq.StatementBuilderType
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithPlaceholder sets the bind-parameter format, e.g. sq.Dollar for postgres.
func WithPlaceholder(f sq.PlaceholderFormat) Option {
	return func(w *Wrapper) {
		if f != nil {
			w.builder = w.builder.PlaceholderFormat(f)
		}
	}
}

// WithTimeout bounds every statement with a deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(w *Wrapper) { w.timeout = d }
}

// WithLogger replaces the logger used for statement tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Wrapper) { w.log = l }
}

// New returns a Wrapper over conn using '?' placeholders unless configured otherwise.
func New(conn Conn, opts ...Option) *Wrapper {
	w := &Wrapper{
		conn:    conn,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		log:     log.With().Str("component", "query").Logger(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// WithConn returns a copy of w bound to another handle, typically a *sql.Tx
// owned by the caller.
func (w *Wrapper) WithConn(conn Conn) *Wrapper {
	c := *w
	c.conn = conn
	return &c
}

// SQL translates stmt into statement text and bound arguments.
func (w *Wrapper) SQL(stmt Statement) (string, []any, error) {
	if stmt == nil {
		return "", nil, &QueryBuildError{Statement: "statement", Err: errNilStatement}
	}
	s, err := stmt.build(w.builder)
	if err != nil {
		return "", nil, &QueryBuildError{Statement: stmt.kind(), Err: err}
	}
	text, args, err := s.ToSql()
	if err != nil {
		return "", nil, &QueryBuildError{Statement: stmt.kind(), Err: err}
	}
	return text, args, nil
}

// Select returns every matching row as a column name to value mapping.
func (w *Wrapper) Select(ctx context.Context, s Select) ([]Row, error) {
	res, err := w.Run(ctx, s, ModeRows)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// SelectField returns the value of field in the first matching row. The
// boolean is false when nothing matched.
func (w *Wrapper) SelectField(ctx context.Context, s Select, field string) (any, bool, error) {
	s.Fields = []string{field}
	res, err := w.Run(ctx, s, ModeValueFirst)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Found, nil
}

// SelectListField returns the value of field for every matching row, in
// the order the driver returned them.
func (w *Wrapper) SelectListField(ctx context.Context, s Select, field string) ([]any, error) {
	s.Fields = []string{field}
	res, err := w.Run(ctx, s, ModeArrayFirst)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// Count returns COUNT(*) over the table, joins and conditions of s.
func (w *Wrapper) Count(ctx context.Context, s Select) (int64, error) {
	s.Fields = []string{"COUNT(*)"}
	s.OrderBy = nil
	s.Limit, s.Offset = 0, 0
	s.Distinct = false
	res, err := w.Run(ctx, s, ModeValueFirst)
	if err != nil {
		return 0, err
	}
	n, ok := AsInt64(res.Value)
	if !ok {
		return 0, fmt.Errorf("count on %s returned non-integer %v", s.Table, res.Value)
	}
	return n, nil
}

// Insert runs an INSERT and reports the execution result.
func (w *Wrapper) Insert(ctx context.Context, s Insert) (Exec, error) {
	return w.exec(ctx, s)
}

// Update runs an UPDATE and reports the execution result.
func (w *Wrapper) Update(ctx context.Context, s Update) (Exec, error) {
	return w.exec(ctx, s)
}

// Delete runs a DELETE and reports the execution result.
func (w *Wrapper) Delete(ctx context.Context, s Delete) (Exec, error) {
	return w.exec(ctx, s)
}

func (w *Wrapper) exec(ctx context.Context, stmt Statement) (Exec, error) {
	res, err := w.Run(ctx, stmt, ModeExecute)
	if err != nil {
		return Exec{}, err
	}
	return res.Exec, nil
}
