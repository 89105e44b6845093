package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var (
	errNilStatement = errors.New("nil statement")
	errNoTable      = errors.New("table name is required")
	errNoValues     = errors.New("no column values given")

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\s+(?i:as\s+)?[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// Statement is a structured description of one SQL statement.
// Select, Insert, Update and Delete implement it.
type Statement interface {
	build(b sq.StatementBuilderType) (sq.Sqlizer, error)
	kind() string
}

// JoinKind selects the join operator.
type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// Join adds one table to the FROM clause. Joins are applied in order, so a
// Select with Table "user_roles ur" and Join{Table: "roles r", On:
// "r.rid = ur.rid"} reads as the triple user_roles, r.rid = ur.rid, roles.
type Join struct {
	Kind  JoinKind // defaults to InnerJoin
	Table string
	On    string
}

// Select describes a SELECT statement. Empty Fields selects every column.
type Select struct {
	Table    string
	Fields   []string
	Where    Condition
	Joins    []Join
	OrderBy  []string
	Limit    uint64
	Offset   uint64
	Distinct bool
}

func (s Select) kind() string { return "select" }

func (s Select) build(b sq.StatementBuilderType) (sq.Sqlizer, error) {
	if err := checkTable(s.Table); err != nil {
		return nil, err
	}
	fields := s.Fields
	if len(fields) == 0 {
		fields = []string{"*"}
	}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return nil, errors.New("empty field name")
		}
	}
	q := b.Select(fields...).From(s.Table)
	if s.Distinct {
		q = q.Distinct()
	}
	for i, j := range s.Joins {
		clause, err := j.clause()
		if err != nil {
			return nil, fmt.Errorf("join %d: %w", i, err)
		}
		q = q.JoinClause(clause)
	}
	pred, err := predicate(s.Where)
	if err != nil {
		return nil, err
	}
	if pred != nil {
		q = q.Where(pred)
	}
	for _, o := range s.OrderBy {
		if strings.TrimSpace(o) == "" {
			return nil, errors.New("empty order by term")
		}
	}
	if len(s.OrderBy) > 0 {
		q = q.OrderBy(s.OrderBy...)
	}
	if s.Limit > 0 {
		q = q.Limit(s.Limit)
	}
	if s.Offset > 0 {
		q = q.Offset(s.Offset)
	}
	return q, nil
}

func (j Join) clause() (string, error) {
	kind := j.Kind
	if kind == "" {
		kind = InnerJoin
	}
	if kind != InnerJoin && kind != LeftJoin {
		return "", fmt.Errorf("unsupported join kind %q", j.Kind)
	}
	if err := checkTable(j.Table); err != nil {
		return "", err
	}
	if strings.TrimSpace(j.On) == "" {
		return "", fmt.Errorf("join on %s has no condition", j.Table)
	}
	return fmt.Sprintf("%s %s ON %s", kind, j.Table, j.On), nil
}

// Insert describes an INSERT of a single row.
type Insert struct {
	Table  string
	Values map[string]any
}

func (s Insert) kind() string { return "insert" }

func (s Insert) build(b sq.StatementBuilderType) (sq.Sqlizer, error) {
	if err := checkTable(s.Table); err != nil {
		return nil, err
	}
	if err := checkColumns(s.Values); err != nil {
		return nil, err
	}
	return b.Insert(s.Table).SetMap(s.Values), nil
}

// Update describes an UPDATE. A nil Where updates every row.
type Update struct {
	Table string
	Set   map[string]any
	Where Condition
}

func (s Update) kind() string { return "update" }

func (s Update) build(b sq.StatementBuilderType) (sq.Sqlizer, error) {
	if err := checkTable(s.Table); err != nil {
		return nil, err
	}
	if err := checkColumns(s.Set); err != nil {
		return nil, err
	}
	q := b.Update(s.Table).SetMap(s.Set)
	pred, err := predicate(s.Where)
	if err != nil {
		return nil, err
	}
	if pred != nil {
		q = q.Where(pred)
	}
	return q, nil
}

// Delete describes a DELETE. A nil Where deletes every row.
type Delete struct {
	Table string
	Where Condition
}

func (s Delete) kind() string { return "delete" }

func (s Delete) build(b sq.StatementBuilderType) (sq.Sqlizer, error) {
	if err := checkTable(s.Table); err != nil {
		return nil, err
	}
	q := b.Delete(s.Table)
	pred, err := predicate(s.Where)
	if err != nil {
		return nil, err
	}
	if pred != nil {
		q = q.Where(pred)
	}
	return q, nil
}

func checkTable(t string) error {
	if strings.TrimSpace(t) == "" {
		return errNoTable
	}
	if !tableRe.MatchString(t) {
		return fmt.Errorf("invalid table %q", t)
	}
	return nil
}

func checkColumns(values map[string]any) error {
	if len(values) == 0 {
		return errNoValues
	}
	for col := range values {
		if !ValidIdentifier(col) {
			return fmt.Errorf("invalid column %q", col)
		}
	}
	return nil
}

// ValidIdentifier reports whether s is a plain, optionally table-qualified,
// column name that is safe to splice into statement text.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}
