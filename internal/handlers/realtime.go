package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/realtime"
	appErrors "github.com/robjohncolson/statrelay/pkg/errors"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// RealtimeHandler upgrades websocket connections onto the fan-out hub.
type RealtimeHandler struct {
	hub      *realtime.Hub
	verifier *auth.Verifier
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, verifier *auth.Verifier) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, verifier: verifier}
}

// Serve upgrades the request. A token is optional because every stream carries
// public reads, but a supplied token must still verify. Initial streams come
// from the `streams` query parameter; clients can adjust later with control
// frames.
func (h *RealtimeHandler) Serve(c *gin.Context) {
	identity := auth.Anonymous
	if token := c.Query("token"); token != "" {
		verified, err := h.verifier.Verify(token)
		if err != nil {
			response.Error(c, appErrors.ErrTokenInvalid)
			return
		}
		identity = *verified
	}

	var streams []string
	for _, raw := range strings.Split(c.Query("streams"), ",") {
		if stream := strings.TrimSpace(raw); stream != "" {
			streams = append(streams, stream)
		}
	}

	h.hub.Serve(identity.Username, streams, c.Writer, c.Request)
}
