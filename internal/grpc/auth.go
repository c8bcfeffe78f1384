package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Billy-Davies-2/pricing-game/internal/auth"
)

// sessionMetadataKey carries "Bearer <session token>", the value of the
// session_id cookie issued by the HTTP sign-in flow.
const sessionMetadataKey = "authorization"

// Authorizer resolves an instructor session token.
type Authorizer interface {
	Instructor(token string) (*auth.User, error)
}

var instructorMethods = map[string]bool{
	fullMethod("SaveConfiguration"): true,
	fullMethod("StartGame"):         true,
	fullMethod("ResetSession"):      true,
}

// InstructorInterceptor applies the instructor gate to the methods that
// change the session. Team methods pass straight through.
func InstructorInterceptor(a Authorizer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !instructorMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		user, err := a.Instructor(sessionToken(ctx))
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			return nil, status.Error(codes.Unauthenticated, err.Error())
		case errors.Is(err, auth.ErrForbidden):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case err != nil:
			return nil, status.Error(codes.Internal, err.Error())
		}
		if user != nil {
			ctx = auth.WithUser(ctx, user)
		}
		return handler(ctx, req)
	}
}

func sessionToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(sessionMetadataKey) {
		if token, found := strings.CutPrefix(v, "Bearer "); found {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// WithSessionToken attaches an instructor session token to outgoing calls.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, sessionMetadataKey, "Bearer "+token)
}
