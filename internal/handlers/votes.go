package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/gateway"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// VoteHandler exposes peer-endorsement endpoints.
type VoteHandler struct {
	gateway *gateway.Gateway
}

// NewVoteHandler constructs a vote handler.
func NewVoteHandler(gw *gateway.Gateway) *VoteHandler {
	return &VoteHandler{gateway: gw}
}

type castVoteRequest struct {
	VoteType string `json:"vote_type" validate:"omitempty,oneof=helpful insightful creative"`
}

// Cast records an endorsement on another student's answer.
func (h *VoteHandler) Cast(c *gin.Context) {
	var body castVoteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	vote, err := h.gateway.CastVote(requestContext(c), callerIdentity(c), c.Param("id"), body.VoteType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, vote)
}
