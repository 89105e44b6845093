package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewUnaryAuthInterceptor returns a gRPC unary interceptor that extracts and validates
// a Bearer JWT from incoming metadata and injects the Principal into the context.
// Methods listed in allowUnauthenticated will bypass authentication (e.g., login, health checks).
func NewUnaryAuthInterceptor(secret string, allowUnauthenticated ...string) grpc.UnaryServerInterceptor {
	allow := make(map[string]struct{}, len(allowUnauthenticated))
	for _, m := range allowUnauthenticated {
		allow[strings.TrimSpace(m)] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		p, err := ParseFromMD(ctx, secret)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "auth error: %v", err)
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing principal")
	}
	return p, nil
}

// RequirePermission ensures the token granted perm.
func RequirePermission(ctx context.Context, perm string) (*Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasPermission(perm) {
		return nil, status.Errorf(codes.PermissionDenied, "missing permission %s", perm)
	}
	return p, nil
}

// RoleLookup reads a user's current role names.
type RoleLookup interface {
	RoleNames(ctx context.Context, uid int64) ([]string, error)
}

// RequireCurrentRole ensures the principal holds role AND that the user still
// holds it in the database. This prevents a revoked role from surviving in a
// token that has not expired yet.
func RequireCurrentRole(ctx context.Context, roles RoleLookup, role string) (*Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasRole(role) {
		return nil, status.Errorf(codes.PermissionDenied, "only %s can perform this action", role)
	}
	if roles == nil {
		return nil, status.Error(codes.Internal, "role lookup not configured")
	}
	names, err := roles.RoleNames(ctx, p.UID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get roles: %v", err)
	}
	for _, n := range names {
		if n == role {
			return p, nil
		}
	}
	return nil, status.Errorf(codes.PermissionDenied, "only %s can perform this action", role)
}
