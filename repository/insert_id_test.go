package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"shopData/internal/db"
	"shopData/models"
	"shopData/query"
)

// noInsertIDDriver is sqlite whose results do not report LastInsertId, the
// way lib/pq and pgx behave.
type noInsertIDDriver struct{ base sqlite3.SQLiteDriver }

func (d *noInsertIDDriver) Open(name string) (driver.Conn, error) {
	c, err := d.base.Open(name)
	if err != nil {
		return nil, err
	}
	return noInsertIDConn{c}, nil
}

type noInsertIDConn struct{ driver.Conn }

// ExecContext keeps multi-statement scripts such as migrations working;
// prepared statements go through Prepare.
func (c noInsertIDConn) ExecContext(ctx context.Context, q string, args []driver.NamedValue) (driver.Result, error) {
	return c.Conn.(driver.ExecerContext).ExecContext(ctx, q, args)
}

func (c noInsertIDConn) Prepare(q string) (driver.Stmt, error) {
	s, err := c.Conn.Prepare(q)
	if err != nil {
		return nil, err
	}
	return noInsertIDStmt{s}, nil
}

type noInsertIDStmt struct{ driver.Stmt }

func (s noInsertIDStmt) Exec(args []driver.Value) (driver.Result, error) {
	r, err := s.Stmt.Exec(args)
	if err != nil {
		return nil, err
	}
	return noInsertIDResult{r}, nil
}

type noInsertIDResult struct{ driver.Result }

func (noInsertIDResult) LastInsertId() (int64, error) {
	return 0, errors.New("LastInsertId is not supported by this driver")
}

var registerNoInsertID sync.Once

func openNoInsertID(t *testing.T, name string) *query.Wrapper {
	t.Helper()
	registerNoInsertID.Do(func() { sql.Register("sqlite3-noinsertid", &noInsertIDDriver{}) })
	d, err := sql.Open("sqlite3-noinsertid", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	d.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(d))
	return query.New(d)
}

func TestCreate_WithoutLastInsertID(t *testing.T) {
	q := openNoInsertID(t, "acct_no_insert_id")
	pw := BcryptPasswords{Cost: bcrypt.MinCost}
	accounts, err := NewAccountProvider(q, AccountConfig{LoginField: "username", Checker: pw, Hasher: pw})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := q.Insert(ctx, query.Insert{Table: "roles", Values: map[string]any{"name": "guest"}})
	require.NoError(t, err)
	require.Zero(t, res.LastInsertID)

	uid, err := accounts.Create(ctx, models.NewUser{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)
	found, ok, err := accounts.Exists(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, found, uid)

	first, err := accounts.CreateRole(ctx, "admin")
	require.NoError(t, err)
	require.Positive(t, first)
	second, err := accounts.CreateRole(ctx, "admin")
	require.NoError(t, err)
	require.Greater(t, second, first)

	require.NoError(t, accounts.AssignRole(ctx, uid, second))
	ids, err := accounts.RoleIDs(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, []int64{second}, ids)
}
