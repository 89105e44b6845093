package db

import (
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteConstraintUniq = sqlitelib.SQLITE_CONSTRAINT_UNIQUE
	sqliteConstraintPK   = sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
)

// DriverMessage returns the message reported by the database driver for err,
// stripped of any wrapping. Errors that did not come from a known driver are
// returned as err.Error().
func DriverMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		mattnErr   sqlite3.Error
		moderncErr *moderncsqlite.Error
		pqErr      *pq.Error
		pgErr      *pgconn.PgError
		myErr      *mysql.MySQLError
	)
	switch {
	case errors.As(err, &mattnErr):
		return mattnErr.Error()
	case errors.As(err, &moderncErr):
		return moderncErr.Error()
	case errors.As(err, &pqErr):
		return pqErr.Message
	case errors.As(err, &pgErr):
		return pgErr.Message
	case errors.As(err, &myErr):
		return myErr.Message
	}
	return err.Error()
}

// Code returns the driver-specific error code for err (SQLSTATE for
// postgres, error number for mysql, extended result code for sqlite), or ""
// when err did not come from a known driver.
func Code(err error) string {
	var (
		mattnErr   sqlite3.Error
		moderncErr *moderncsqlite.Error
		pqErr      *pq.Error
		pgErr      *pgconn.PgError
		myErr      *mysql.MySQLError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &mattnErr):
		return strconv.Itoa(int(mattnErr.ExtendedCode))
	case errors.As(err, &moderncErr):
		return strconv.Itoa(moderncErr.Code())
	case errors.As(err, &pqErr):
		return string(pqErr.Code)
	case errors.As(err, &pgErr):
		return pgErr.Code
	case errors.As(err, &myErr):
		return strconv.Itoa(int(myErr.Number))
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique or primary key
// constraint violation on any supported driver.
func IsUniqueViolation(err error) bool {
	var (
		mattnErr   sqlite3.Error
		moderncErr *moderncsqlite.Error
		pqErr      *pq.Error
		pgErr      *pgconn.PgError
		myErr      *mysql.MySQLError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &mattnErr):
		return mattnErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			mattnErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	case errors.As(err, &moderncErr):
		return moderncErr.Code() == sqliteConstraintUniq || moderncErr.Code() == sqliteConstraintPK
	case errors.As(err, &pqErr):
		return pqErr.Code == pgUniqueViolation
	case errors.As(err, &pgErr):
		return pgErr.Code == pgUniqueViolation
	case errors.As(err, &myErr):
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}
