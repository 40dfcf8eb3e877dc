package cli

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/peerlearn/internal/client/credentials"
	"github.com/dmitrijs2005/peerlearn/internal/client/grpcauth"
)

// healthProbe checks the server's gRPC health service with the session's
// credentials attached, so a stale access token is refreshed on the way.
type healthProbe struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

func dialProbe(addr string, store *credentials.Store, tokens grpcauth.TokenSource) (*healthProbe, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpcauth.UnaryClientInterceptor(store, tokens)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newHealthProbe(conn), nil
}

func newHealthProbe(conn *grpc.ClientConn) *healthProbe {
	return &healthProbe{conn: conn, client: healthpb.NewHealthClient(conn)}
}

func (p *healthProbe) Ping(ctx context.Context, opts ...grpc.CallOption) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{}, opts...)
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("server status %s", resp.GetStatus())
	}
	return nil
}

func (p *healthProbe) Close() error {
	return p.conn.Close()
}

// pingOptions sends the probe anonymously while nobody is signed in.
func (a *App) pingOptions() []grpc.CallOption {
	if a.isLoggedIn() {
		return nil
	}
	return []grpc.CallOption{grpcauth.SkipAuth()}
}

// Ping probes the server once and updates the connectivity mode.
func (a *App) Ping(ctx context.Context) error {
	err := a.probe.Ping(ctx, a.pingOptions()...)
	if err != nil {
		a.setMode(ModeOffline)
		fmt.Fprintln(a.out, "Server unreachable:", err)
		return err
	}
	a.setMode(ModeOnline)
	fmt.Fprintln(a.out, "Server is up.")
	return nil
}
