package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"shopData/internal/config"
	"shopData/internal/testutil"
	"shopData/models"
	"shopData/repository"
)

const testSecret = "grpc-test-secret"

type harness struct {
	client   *AccountClient
	conn     *grpc.ClientConn
	accounts *repository.AccountProvider
	uid      int64
	editRID  int64
}

func newHarness(t *testing.T, name string) *harness {
	t.Helper()
	_, q := testutil.NewWrapper(t, name)
	pw := repository.BcryptPasswords{Cost: bcrypt.MinCost}
	accounts, err := repository.NewAccountProvider(q, repository.AccountConfig{
		Fields:        []string{"first_name"},
		InactiveField: "inactive",
		Checker:       pw,
		Hasher:        pw,
	})
	require.NoError(t, err)

	ctx := context.Background()
	uid, err := accounts.Create(ctx, models.NewUser{
		Username: "alice", Email: "alice@example.com", Password: "s3cret",
		Fields: map[string]any{"first_name": "Alice"},
	})
	require.NoError(t, err)
	rid, err := accounts.CreateRole(ctx, "editor")
	require.NoError(t, err)
	require.NoError(t, accounts.AssignRole(ctx, uid, rid))
	require.NoError(t, accounts.GrantRole(ctx, rid, "catalog.edit"))
	require.NoError(t, accounts.GrantUser(ctx, uid, "profile.edit"))

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.TokenTTL = time.Hour

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(cfg, accounts)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewAccountClient(conn), conn: conn, accounts: accounts, uid: uid, editRID: rid}
}

func (h *harness) login(t *testing.T) (string, *structpb.Struct) {
	t.Helper()
	out, err := h.client.Login(context.Background(), " alice@example.com ", "s3cret")
	require.NoError(t, err)
	token := out.GetFields()["token"].GetStringValue()
	require.NotEmpty(t, token)
	return token, out.GetFields()["account"].GetStructValue()
}

func TestLogin_ReturnsTokenAndAccount(t *testing.T) {
	h := newHarness(t, "grpc_login")
	_, acct := h.login(t)

	f := acct.GetFields()
	require.Equal(t, float64(h.uid), f["uid"].GetNumberValue())
	require.Equal(t, "alice", f["username"].GetStringValue())
	require.Equal(t, []any{"editor"}, f["roles"].GetListValue().AsSlice())
	require.ElementsMatch(t, []any{"catalog.edit", "profile.edit"}, f["permissions"].GetListValue().AsSlice())
	require.Equal(t, "Alice", f["fields"].GetStructValue().GetFields()["first_name"].GetStringValue())
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t, "grpc_login_fail")
	ctx := context.Background()

	_, err := h.client.Login(ctx, "alice@example.com", "wrong")
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.client.Login(ctx, "", "s3cret")
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	// Passwords are compared as given, surrounding spaces included.
	_, err = h.client.Login(ctx, "alice@example.com", " s3cret ")
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	require.NoError(t, h.accounts.Deactivate(ctx, "alice@example.com"))
	_, err = h.client.Login(ctx, "alice@example.com", "s3cret")
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestPermissions_RequireToken(t *testing.T) {
	h := newHarness(t, "grpc_perms_auth")

	_, err := h.client.Permissions(context.Background())
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := testutil.OutgoingBearer(context.Background(), "not-a-token")
	_, err = h.client.CheckPermission(bad, "catalog.edit")
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestPermissions_ReadCurrentGrants(t *testing.T) {
	h := newHarness(t, "grpc_perms")
	token, _ := h.login(t)
	ctx := testutil.OutgoingBearer(context.Background(), token)

	out, err := h.client.Permissions(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []any{"catalog.edit", "profile.edit"}, out.GetFields()["permissions"].GetListValue().AsSlice())

	out, err = h.client.CheckPermission(ctx, "catalog.edit")
	require.NoError(t, err)
	require.True(t, out.GetFields()["allowed"].GetBoolValue())

	out, err = h.client.CheckPermission(ctx, "orders.manage")
	require.NoError(t, err)
	require.False(t, out.GetFields()["allowed"].GetBoolValue())

	_, err = h.client.CheckPermission(ctx, "  ")
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	// Grants added after the token was issued are visible immediately.
	require.NoError(t, h.accounts.GrantRole(context.Background(), h.editRID, "orders.manage"))
	out, err = h.client.CheckPermission(ctx, "orders.manage")
	require.NoError(t, err)
	require.True(t, out.GetFields()["allowed"].GetBoolValue())
}

func TestHealth_NoTokenNeeded(t *testing.T) {
	h := newHarness(t, "grpc_health")
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: accountServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
