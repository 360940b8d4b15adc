package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/gateway"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// ClassHandler exposes class-section aggregate reads.
type ClassHandler struct {
	gateway *gateway.Gateway
}

// NewClassHandler constructs a class handler.
func NewClassHandler(gw *gateway.Gateway) *ClassHandler {
	return &ClassHandler{gateway: gw}
}

// Peers returns per-question activity for a class section.
func (h *ClassHandler) Peers(c *gin.Context) {
	rows, err := h.gateway.ClassPeerData(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// Roster returns the member list; only the owning teacher may read it.
func (h *ClassHandler) Roster(c *gin.Context) {
	roster, err := h.gateway.ClassRoster(requestContext(c), callerIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roster)
}

// Leaderboard ranks a class's students by badge count.
func (h *ClassHandler) Leaderboard(c *gin.Context) {
	board, err := h.gateway.Leaderboard(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, board)
}
