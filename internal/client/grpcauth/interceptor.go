// Package grpcauth applies the session's bearer token to gRPC calls with
// the same refresh-and-retry-once rule as the HTTP pipeline.
package grpcauth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/peerlearn/internal/client/credentials"
	"github.com/dmitrijs2005/peerlearn/internal/common"
)

// MetadataKey carries "Bearer <token>"; gRPC metadata keys are lowercase.
const MetadataKey = "authorization"

// TokenSource supplies a replacement token after rejected was refused.
type TokenSource interface {
	Token(ctx context.Context, rejected string) (string, error)
}

type skipAuth struct{ grpc.EmptyCallOption }

// SkipAuth sends the call without credentials.
func SkipAuth() grpc.CallOption { return skipAuth{} }

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(MetadataKey)
	if token != "" {
		md.Set(MetadataKey, common.BearerPrefix+token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// UnaryClientInterceptor attaches the stored access token. On
// codes.Unauthenticated it asks tokens for a new one and re-invokes the
// call once; a nil tokens disables the retry.
func UnaryClientInterceptor(store *credentials.Store, tokens TokenSource) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		for _, o := range opts {
			if _, ok := o.(skipAuth); ok {
				return invoker(ctx, method, req, reply, cc, opts...)
			}
		}

		token := store.Get(ctx).AccessToken
		err := invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
		if err == nil || tokens == nil {
			return err
		}
		if status.Code(err) != codes.Unauthenticated {
			return err
		}

		fresh, terr := tokens.Token(ctx, token)
		if terr != nil {
			return terr
		}
		return invoker(withAccessToken(ctx, fresh), method, req, reply, cc, opts...)
	}
}
