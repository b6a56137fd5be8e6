package middleware

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/handlers"
	"github.com/serroba/url-shortener/internal/token"
	"go.uber.org/zap"
)

// TokenVerifier validates a signed token.
type TokenVerifier interface {
	Verify(raw string) (token.Claims, error)
}

// Authenticate verifies bearer access tokens on operations that declare the
// bearer scheme and stores the caller identity in the request context.
func Authenticate(api huma.API, verifier TokenVerifier, logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		required, declared := securityMode(ctx.Operation())
		if !declared {
			next(ctx)

			return
		}

		raw, ok := parseBearer(ctx.Header("Authorization"))
		if !ok {
			if required {
				_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing bearer token")

				return
			}

			next(ctx)

			return
		}

		claims, err := verifier.Verify(raw)
		if err == nil && claims.Type != token.TypeAccess {
			err = token.ErrInvalid
		}

		if err != nil {
			logger.Debug("bearer token rejected", zap.Error(err))

			if required {
				_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid or expired token")

				return
			}

			next(ctx)

			return
		}

		id := auth.Identity{UserID: claims.Subject, Email: claims.Email}
		next(huma.WithContext(ctx, auth.WithIdentity(ctx.Context(), id)))
	}
}

// securityMode reports whether the operation declares bearer auth and whether
// an anonymous alternative ({}) is absent.
func securityMode(op *huma.Operation) (required, declared bool) {
	if op == nil {
		return false, false
	}

	anonymous := false

	for _, req := range op.Security {
		if len(req) == 0 {
			anonymous = true

			continue
		}

		if _, ok := req[handlers.SecurityScheme]; ok {
			declared = true
		}
	}

	return declared && !anonymous, declared
}

func parseBearer(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}
