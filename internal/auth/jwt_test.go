package auth

import (
	"context"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"shopData/internal/testutil"
	"shopData/models"
)

const testSecret = "test-secret"

func TestParseFromMD_ValidBearer(t *testing.T) {
	tok := testutil.GenerateToken(t, testSecret, &models.Account{
		UID: 7, Username: "alice", Roles: []string{"admin"}, Permissions: []string{"orders.manage"},
	})
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	p, err := ParseFromMD(ctx, testSecret)
	if err != nil {
		t.Fatalf("ParseFromMD: %v", err)
	}
	if p.UID != 7 || p.Username != "alice" || !p.HasRole("admin") || !p.HasPermission("orders.manage") {
		t.Fatalf("principal mismatch: %+v", p)
	}
	if p.HasPermission("catalog.edit") {
		t.Fatalf("unexpected permission on %+v", p)
	}
}

func TestIssueToken_RoundTrip(t *testing.T) {
	acct := &models.Account{UID: 3, Username: "bob", Roles: []string{"editor"}}
	tok, err := IssueToken(testSecret, acct, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	p, err := parseJWT(tok, testSecret)
	if err != nil {
		t.Fatalf("parseJWT: %v", err)
	}
	if p.UID != 3 || p.Username != "bob" || len(p.Permissions) != 0 {
		t.Fatalf("principal mismatch: %+v", p)
	}

	if _, err := IssueToken("", acct, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := IssueToken(testSecret, nil, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for nil account")
	}
}

func TestParseJWT_Expired(t *testing.T) {
	acct := &models.Account{UID: 3, Username: "bob"}
	tok, err := IssueToken(testSecret, acct, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := parseJWT(tok, testSecret); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseFromMD_MissingHeader(t *testing.T) {
	if _, err := ParseFromMD(context.Background(), testSecret); err == nil {
		t.Fatalf("expected error for missing metadata")
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1"))
	if _, err := ParseFromMD(ctx, testSecret); err == nil {
		t.Fatalf("expected error for missing authorization")
	}
}

func TestParseFromMD_InvalidScheme(t *testing.T) {
	tok := testutil.GenerateToken(t, testSecret, &models.Account{UID: 1, Username: "bob"})
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic "+tok))
	if _, err := ParseFromMD(ctx, testSecret); err == nil {
		t.Fatalf("expected error for non-Bearer scheme")
	}
	if _, err := parseJWT(tok, "wrong"); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
}

func TestParseJWT_ClaimsValidation(t *testing.T) {
	// Missing username.
	tok := testutil.GenerateToken(t, testSecret, &models.Account{UID: 1})
	if _, err := parseJWT(tok, testSecret); err == nil {
		t.Fatalf("expected invalid claims error")
	}
	// Non-positive subject.
	tok = testutil.GenerateToken(t, testSecret, &models.Account{UID: 0, Username: "x"})
	if _, err := parseJWT(tok, testSecret); err == nil {
		t.Fatalf("expected invalid subject error")
	}
	// Other signing algorithm.
	none, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "1", "username": "x"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := parseJWT(none, testSecret); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}
}
