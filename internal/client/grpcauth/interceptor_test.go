package grpcauth

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/peerlearn/internal/client/credentials"
	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

type authServer struct {
	mu    sync.Mutex
	valid string
	seen  []string
}

func (a *authServer) interceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var got string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MetadataKey); len(v) > 0 {
			got = v[0]
		}
	}
	a.mu.Lock()
	a.seen = append(a.seen, got)
	ok := got == "Bearer "+a.valid
	a.mu.Unlock()
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return handler(ctx, req)
}

type fakeTokens struct {
	store *credentials.Store
	next  string
	err   error
	calls int
}

func (f *fakeTokens) Token(ctx context.Context, rejected string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if err := f.store.SetTokens(ctx, f.next, "R-"+f.next); err != nil {
		return "", err
	}
	return f.next, nil
}

func dial(t *testing.T, srv *authServer, store *credentials.Store, tokens TokenSource) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(srv.interceptor))
	healthpb.RegisterHealthServer(s, health.NewServer())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(UnaryClientInterceptor(store, tokens)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func loggedIn(t *testing.T, access string) *credentials.Store {
	t.Helper()
	store := credentials.NewStore(credentials.NewMemoryBackend(), logging.Nop())
	require.NoError(t, store.SetTokens(context.Background(), access, "R1"))
	return store
}

func TestInterceptor_AttachesBearer(t *testing.T) {
	srv := &authServer{valid: "A1"}
	store := loggedIn(t, "A1")
	tokens := &fakeTokens{store: store}
	client := dial(t, srv, store, tokens)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.Equal(t, []string{"Bearer A1"}, srv.seen)
	assert.Zero(t, tokens.calls)
}

func TestInterceptor_RefreshesOnceOnUnauthenticated(t *testing.T) {
	srv := &authServer{valid: "A2"}
	store := loggedIn(t, "A1")
	tokens := &fakeTokens{store: store, next: "A2"}
	client := dial(t, srv, store, tokens)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, srv.seen)
}

func TestInterceptor_SecondRejectionReturned(t *testing.T) {
	srv := &authServer{valid: "nobody"}
	store := loggedIn(t, "A1")
	tokens := &fakeTokens{store: store, next: "A2"}
	client := dial(t, srv, store, tokens)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, 1, tokens.calls)
	assert.Len(t, srv.seen, 2)
}

func TestInterceptor_RefreshFailureSurfacesSessionExpired(t *testing.T) {
	srv := &authServer{valid: "A2"}
	store := loggedIn(t, "A1")
	tokens := &fakeTokens{store: store, err: common.ErrSessionExpired}
	client := dial(t, srv, store, tokens)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestInterceptor_SkipAuth(t *testing.T) {
	srv := &authServer{valid: "A1"}
	store := loggedIn(t, "A1")
	tokens := &fakeTokens{store: store, next: "A2"}
	client := dial(t, srv, store, tokens)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{}, SkipAuth())
	require.Error(t, err)
	assert.Zero(t, tokens.calls)
	assert.Equal(t, []string{""}, srv.seen)
}

func TestWithAccessToken_ReplacesExisting(t *testing.T) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), MetadataKey, "Bearer old", "x-trace", "t1")
	ctx = withAccessToken(ctx, "new")

	md, _ := metadata.FromOutgoingContext(ctx)
	assert.Equal(t, []string{"Bearer new"}, md.Get(MetadataKey))
	assert.Equal(t, []string{"t1"}, md.Get("x-trace"))
	assert.True(t, strings.HasPrefix(md.Get(MetadataKey)[0], common.BearerPrefix))
}
