package testutil

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"shopData/internal/db"
	"shopData/models"
	"shopData/query"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The DB is closed through t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// We use a shared cache memory database so that multiple connections share the same DB if needed.
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// NewWrapper opens an in-memory database and returns it with a query wrapper over it.
func NewWrapper(t *testing.T, name string) (*sql.DB, *query.Wrapper) {
	t.Helper()
	d := OpenInMemoryDB(t, name)
	return d, query.New(d, query.WithPlaceholder(db.Placeholder(db.DriverSQLite3)))
}

// GenerateToken returns a signed HS256 token for acct valid for one hour,
// carrying the claims the app reads.
func GenerateToken(t *testing.T, secret string, acct *models.Account) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(acct.UID, 10),
		"username": acct.Username,
		"roles":    acct.Roles,
		"perms":    acct.Permissions,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}

// OutgoingBearer attaches the token to an outgoing client context.
func OutgoingBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
