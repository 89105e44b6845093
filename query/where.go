package query

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Condition is a WHERE predicate. Eq, Cmp, And, Or and Expr implement it.
type Condition interface {
	predicate() (sq.Sqlizer, error)
}

// Eq matches every column against its value, joined with AND. A nil value
// renders IS NULL and a slice renders IN (...).
type Eq map[string]any

// Cmp compares a single column with an operator: =, !=, <>, <, <=, >, >=,
// LIKE, NOT LIKE, IN or NOT IN. IN and NOT IN take a slice.
type Cmp struct {
	Column string
	Op     string
	Value  any
}

// And joins conditions with AND.
type And []Condition

// Or joins conditions with OR, each one parenthesized.
type Or []Condition

// Expr is a raw predicate fragment with its own bound arguments.
type Expr struct {
	SQL  string
	Args []any
}

func predicate(c Condition) (sq.Sqlizer, error) {
	if c == nil || isNilCondition(c) {
		return nil, nil
	}
	return c.predicate()
}

func isNilCondition(c Condition) bool {
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

func (e Eq) predicate() (sq.Sqlizer, error) {
	if len(e) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(e))
	for col := range e {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	out := sq.Eq{}
	for _, col := range cols {
		if !ValidIdentifier(col) {
			return nil, fmt.Errorf("invalid column %q in condition", col)
		}
		if err := checkValue(col, e[col], true); err != nil {
			return nil, err
		}
		out[col] = e[col]
	}
	return out, nil
}

func (c Cmp) predicate() (sq.Sqlizer, error) {
	if !ValidIdentifier(c.Column) {
		return nil, fmt.Errorf("invalid column %q in condition", c.Column)
	}
	op := strings.ToUpper(strings.Join(strings.Fields(c.Op), " "))
	list := op == "IN" || op == "NOT IN"
	if err := checkValue(c.Column, c.Value, list); err != nil {
		return nil, err
	}
	if list && !isList(c.Value) {
		return nil, fmt.Errorf("operator %s on %s needs a list value", op, c.Column)
	}
	switch op {
	case "=", "IN":
		return sq.Eq{c.Column: c.Value}, nil
	case "!=", "<>", "NOT IN":
		return sq.NotEq{c.Column: c.Value}, nil
	case "<":
		return sq.Lt{c.Column: c.Value}, nil
	case "<=":
		return sq.LtOrEq{c.Column: c.Value}, nil
	case ">":
		return sq.Gt{c.Column: c.Value}, nil
	case ">=":
		return sq.GtOrEq{c.Column: c.Value}, nil
	case "LIKE":
		return sq.Like{c.Column: c.Value}, nil
	case "NOT LIKE":
		return sq.NotLike{c.Column: c.Value}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q on %s", c.Op, c.Column)
}

func (a And) predicate() (sq.Sqlizer, error) {
	parts, err := group(a)
	if err != nil || parts == nil {
		return nil, err
	}
	return sq.And(parts), nil
}

func (o Or) predicate() (sq.Sqlizer, error) {
	parts, err := group(o)
	if err != nil || parts == nil {
		return nil, err
	}
	return sq.Or(parts), nil
}

func (e Expr) predicate() (sq.Sqlizer, error) {
	if strings.TrimSpace(e.SQL) == "" {
		return nil, errors.New("empty expression")
	}
	if n := strings.Count(e.SQL, "?"); n != len(e.Args) {
		return nil, fmt.Errorf("expression %q has %d placeholders but %d args", e.SQL, n, len(e.Args))
	}
	return sq.Expr(e.SQL, e.Args...), nil
}

// group translates every member, dropping the empty ones.
func group(conds []Condition) ([]sq.Sqlizer, error) {
	var parts []sq.Sqlizer
	for i, c := range conds {
		p, err := predicate(c)
		if err != nil {
			return nil, fmt.Errorf("group member %d: %w", i, err)
		}
		if p != nil {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// checkValue rejects nested structures a flat predicate cannot express.
func checkValue(col string, v any, allowList bool) error {
	if v == nil {
		return nil
	}
	if _, ok := v.(Condition); ok {
		return fmt.Errorf("nested condition under column %s", col)
	}
	if _, ok := v.(driver.Valuer); ok {
		return nil
	}
	switch v.(type) {
	case []byte, time.Time:
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		return fmt.Errorf("unsupported value of type %T for column %s", v, col)
	case reflect.Slice, reflect.Array:
		if !allowList {
			return fmt.Errorf("list value for column %s needs IN", col)
		}
	}
	return nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
