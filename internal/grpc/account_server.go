package grpcserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"shopData/internal/auth"
	"shopData/models"
	"shopData/repository"
)

// Full method names of the account service.
const (
	accountServiceName      = "shop.account.v1.AccountService"
	LoginMethod             = "/" + accountServiceName + "/Login"
	PermissionsMethod       = "/" + accountServiceName + "/Permissions"
	CheckPermissionMethod   = "/" + accountServiceName + "/CheckPermission"
	invalidCredentialsError = "invalid credentials"
)

// AccountServiceServer is the account service. Requests and responses are
// google.protobuf.Struct messages:
//
//	Login           {username, password} -> {token, account}
//	Permissions     {}                   -> {permissions}
//	CheckPermission {perm}               -> {allowed}
type AccountServiceServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Permissions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckPermission(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AccountServer implements AccountServiceServer over an AccountProvider.
type AccountServer struct {
	Accounts *repository.AccountProvider
	Secret   string
	TokenTTL time.Duration
	Now      func() time.Time
}

// Login authenticates the caller and returns a signed token plus the account record.
func (s *AccountServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := strings.TrimSpace(stringField(req, "username"))
	password := stringField(req, "password")
	if username == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}
	acct, err := s.Accounts.Login(ctx, username, password)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "login: %v", err)
	}
	if acct == nil {
		return nil, status.Error(codes.Unauthenticated, invalidCredentialsError)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	token, err := auth.IssueToken(s.Secret, acct, s.TokenTTL, now())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "issue token: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"token":   structpb.NewStringValue(token),
		"account": accountValue(acct),
	}}, nil
}

// Permissions returns the caller's current permissions, read from the
// database rather than from the token.
func (s *AccountServer) Permissions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	perms, err := s.currentPermissions(ctx)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"permissions": stringList(perms),
	}}, nil
}

// CheckPermission reports whether the caller currently holds perm.
func (s *AccountServer) CheckPermission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	perm := strings.TrimSpace(stringField(req, "perm"))
	if perm == "" {
		return nil, status.Error(codes.InvalidArgument, "perm is required")
	}
	perms, err := s.currentPermissions(ctx)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, p := range perms {
		if p == perm {
			allowed = true
			break
		}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"allowed": structpb.NewBoolValue(allowed),
	}}, nil
}

func (s *AccountServer) currentPermissions(ctx context.Context) ([]string, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	rids, err := s.Accounts.RoleIDs(ctx, p.UID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get roles: %v", err)
	}
	perms, err := s.Accounts.Permissions(ctx, p.UID, rids)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get permissions: %v", err)
	}
	return perms, nil
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func stringList(items []string) *structpb.Value {
	vals := make([]*structpb.Value, 0, len(items))
	for _, it := range items {
		vals = append(vals, structpb.NewStringValue(it))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

// accountValue encodes an account. Extra field values that structpb cannot
// carry (timestamps, driver-specific types) are sent as text.
func accountValue(a *models.Account) *structpb.Value {
	roleIDs := make([]*structpb.Value, 0, len(a.RoleIDs))
	for _, id := range a.RoleIDs {
		roleIDs = append(roleIDs, structpb.NewNumberValue(float64(id)))
	}
	fields := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for k, v := range a.Fields {
		pv, err := structpb.NewValue(v)
		if err != nil {
			pv = structpb.NewStringValue(fmt.Sprint(v))
		}
		fields.Fields[k] = pv
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"uid":         structpb.NewNumberValue(float64(a.UID)),
		"username":    structpb.NewStringValue(a.Username),
		"roles":       stringList(a.Roles),
		"role_ids":    structpb.NewListValue(&structpb.ListValue{Values: roleIDs}),
		"permissions": stringList(a.Permissions),
		"fields":      structpb.NewStructValue(fields),
	}})
}

// RegisterAccountServiceServer registers srv with s.
func RegisterAccountServiceServer(s grpc.ServiceRegistrar, srv AccountServiceServer) {
	s.RegisterService(&accountServiceDesc, srv)
}

var accountServiceDesc = grpc.ServiceDesc{
	ServiceName: accountServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(LoginMethod, AccountServiceServer.Login)},
		{MethodName: "Permissions", Handler: unaryHandler(PermissionsMethod, AccountServiceServer.Permissions)},
		{MethodName: "CheckPermission", Handler: unaryHandler(CheckPermissionMethod, AccountServiceServer.CheckPermission)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shop/account/v1/account.proto",
}

type structMethod func(AccountServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AccountServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AccountServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AccountClient calls the account service.
type AccountClient struct {
	cc grpc.ClientConnInterface
}

// NewAccountClient returns a client over cc.
func NewAccountClient(cc grpc.ClientConnInterface) *AccountClient {
	return &AccountClient{cc: cc}
}

// Login calls AccountService.Login.
func (c *AccountClient) Login(ctx context.Context, username, password string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, LoginMethod, in, opts...)
}

// Permissions calls AccountService.Permissions.
func (c *AccountClient) Permissions(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, PermissionsMethod, &structpb.Struct{}, opts...)
}

// CheckPermission calls AccountService.CheckPermission.
func (c *AccountClient) CheckPermission(ctx context.Context, perm string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"perm": perm})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, CheckPermissionMethod, in, opts...)
}

func (c *AccountClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
