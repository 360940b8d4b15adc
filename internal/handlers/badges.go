package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/gateway"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// BadgeHandler exposes badge awarding.
type BadgeHandler struct {
	gateway *gateway.Gateway
}

// NewBadgeHandler constructs a badge handler.
func NewBadgeHandler(gw *gateway.Gateway) *BadgeHandler {
	return &BadgeHandler{gateway: gw}
}

// Award attaches a badge to a profile.
func (h *BadgeHandler) Award(c *gin.Context) {
	var body gateway.AwardBadgeInput
	if !bindAndValidate(c, &body) {
		return
	}

	badge, err := h.gateway.AwardBadge(requestContext(c), callerIdentity(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, badge)
}
