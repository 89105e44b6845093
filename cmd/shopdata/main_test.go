package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shopData/internal/db"
	"shopData/query"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	t.Setenv("DB_DRIVER", db.DriverSQLite3)
	t.Setenv("DB_DSN", path)
	t.Setenv("DB_MIGRATE", "true")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FILE", "")
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestUserAdd_MissingFlagsReportsError(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "user", "add")
	require.Error(t, err)
	require.Contains(t, out, "--username, --email and --password are required")
}

func TestMigrate_NonSQLiteDriverReportsError(t *testing.T) {
	setupEnv(t)
	t.Setenv("DB_DRIVER", db.DriverPgx)

	out, err := runCLI(t, "migrate", "up")
	require.Error(t, err)
	require.Contains(t, out, "embedded migrations only target sqlite")
}

func TestUserAdd_ReusesExistingRole(t *testing.T) {
	path := setupEnv(t)

	_, err := runCLI(t, "user", "add", "--username", "alice", "--email", "alice@example.com", "--password", "pw", "--role", "admin")
	require.NoError(t, err)
	_, err = runCLI(t, "user", "add", "--username", "bob", "--email", "bob@example.com", "--password", "pw", "--role", "admin", "--role", "editor")
	require.NoError(t, err)

	d, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	q := query.New(d)
	ctx := context.Background()

	n, err := q.Count(ctx, query.Select{Table: "roles", Where: query.Eq{"name": "admin"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = q.Count(ctx, query.Select{Table: "roles"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = q.Count(ctx, query.Select{
		Table: "user_roles ur",
		Joins: []query.Join{{Table: "roles r", On: "r.rid = ur.rid"}},
		Where: query.Eq{"r.name": "admin"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
