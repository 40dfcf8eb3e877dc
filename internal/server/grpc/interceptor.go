package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/server/auth"
)

type ctxKey string

const emailKey ctxKey = "email"

var metadataKey = strings.ToLower(common.AuthorizationHeaderName)

// EmailFromContext returns the caller's email when the call carried a
// valid access token.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey).(string)
	return email, ok
}

// accessTokenInterceptor lets anonymous calls through but rejects a
// presented token that is not a valid access token.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	var value string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(metadataKey); len(values) > 0 {
			value = values[0]
		}
	}
	if value == "" {
		return handler(ctx, req)
	}

	token, ok := strings.CutPrefix(value, common.BearerPrefix)
	if !ok || token == "" {
		return nil, status.Error(codes.Unauthenticated, "malformed authorization")
	}

	email, err := auth.GetEmailFromToken(token, auth.TypeAccess, s.jwtSecret)
	if err != nil {
		s.logger.Debug(ctx, "rejected token", "method", info.FullMethod, "fingerprint", common.Fingerprint(token), "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(context.WithValue(ctx, emailKey, email), req)
}
