package auth

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"shopData/internal/testutil"
	"shopData/models"
	"shopData/repository"
)

func TestRequirePermission(t *testing.T) {
	if _, err := RequirePrincipal(context.Background()); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	ctx := WithPrincipal(context.Background(), &Principal{UID: 1, Username: "d1", Permissions: []string{"catalog.edit"}})
	if _, err := RequirePermission(ctx, "catalog.edit"); err != nil {
		t.Fatalf("RequirePermission: %v", err)
	}
	if _, err := RequirePermission(ctx, "orders.manage"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestRequireCurrentRole_WithDBRoleCheck(t *testing.T) {
	_, q := testutil.NewWrapper(t, "authadmin")
	pw := repository.BcryptPasswords{Cost: bcrypt.MinCost}
	accounts, err := repository.NewAccountProvider(q, repository.AccountConfig{Checker: pw, Hasher: pw})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	uid, err := accounts.Create(ctx, models.NewUser{Username: "alice", Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}

	// Token claims admin but the database has no such assignment.
	pctx := WithPrincipal(context.Background(), &Principal{UID: uid, Username: "alice", Roles: []string{"admin"}})
	if _, err := RequireCurrentRole(pctx, accounts, "admin"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied for revoked role, got %v", err)
	}

	rid, err := accounts.CreateRole(ctx, "admin")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := accounts.AssignRole(ctx, uid, rid); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if _, err := RequireCurrentRole(pctx, accounts, "admin"); err != nil {
		t.Fatalf("RequireCurrentRole real admin: %v", err)
	}

	plain := WithPrincipal(context.Background(), &Principal{UID: uid, Username: "alice"})
	if _, err := RequireCurrentRole(plain, accounts, "admin"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied without role claim, got %v", err)
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	secret := "s3cr3t"
	interceptor := NewUnaryAuthInterceptor(secret, "/health")

	// Allowlisted: no header, handler runs without a principal.
	hCalled := false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/health"}, func(ctx context.Context, req any) (any, error) {
		hCalled = true
		if p, ok := FromContext(ctx); ok && p != nil {
			t.Fatalf("expected no principal on allowlisted path")
		}
		return 123, nil
	})
	if err != nil || !hCalled {
		t.Fatalf("allowlisted handler err=%v called=%v", err, hCalled)
	}

	tok := testutil.GenerateToken(t, secret, &models.Account{UID: 9, Username: "bob", Roles: []string{"editor"}})
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	_, err = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Op"}, func(ctx context.Context, req any) (any, error) {
		p, ok := FromContext(ctx)
		if !ok || p == nil || p.UID != 9 || p.Username != "bob" || !p.HasRole("editor") {
			t.Fatalf("principal not injected: %+v ok=%v", p, ok)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor auth path: %v", err)
	}

	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Op"}, func(ctx context.Context, req any) (any, error) {
		t.Fatalf("handler must not run without a token")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
