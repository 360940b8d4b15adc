package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/pkg/errors"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// CtxIdentityKey is the gin context key carrying the verified request identity.
const CtxIdentityKey = "identity"

// RequireAuth enforces bearer-token authentication using the claims verifier.
func RequireAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			// All verification failures normalise to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrTokenInvalid)
			c.Abort()
			return
		}

		c.Set(CtxIdentityKey, *identity)
		c.Next()
	}
}

// OptionalAuth resolves an identity when a token is presented but lets
// anonymous requests through. A malformed or expired token still fails.
func OptionalAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := bearerToken(c)

		identity, err := verifier.OptionalVerify(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrTokenInvalid)
			c.Abort()
			return
		}

		c.Set(CtxIdentityKey, *identity)
		c.Next()
	}
}

// IdentityFrom extracts the verified identity from the gin context, falling
// back to the anonymous identity when no auth middleware ran.
func IdentityFrom(c *gin.Context) auth.Identity {
	if value, ok := c.Get(CtxIdentityKey); ok {
		if identity, ok := value.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Anonymous
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(authz[7:]), true
}
