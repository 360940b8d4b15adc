package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// callerIdentity resolves the verified identity placed by the auth middleware.
func callerIdentity(c *gin.Context) auth.Identity {
	return middleware.IdentityFrom(c)
}
