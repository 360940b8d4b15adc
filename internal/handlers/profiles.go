package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/gateway"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// ProfileHandler exposes profile creation, token checks and progress endpoints.
type ProfileHandler struct {
	gateway  *gateway.Gateway
	verifier *auth.Verifier
}

// NewProfileHandler constructs a profile handler.
func NewProfileHandler(gw *gateway.Gateway, verifier *auth.Verifier) *ProfileHandler {
	return &ProfileHandler{gateway: gw, verifier: verifier}
}

// Create claims a display name and hands back the bearer token for it.
func (h *ProfileHandler) Create(c *gin.Context) {
	var body gateway.CreateProfileInput
	if !bindAndValidate(c, &body) {
		return
	}

	profile, err := h.gateway.CreateProfile(requestContext(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.verifier.Issue(auth.IssueInput{
		Username: profile.Username,
		Role:     auth.RoleStudent,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"profile": profile,
		"token":   token,
	})
}

// VerifyToken echoes the identity carried by a valid bearer token. The auth
// middleware has already rejected invalid tokens before this runs.
func (h *ProfileHandler) VerifyToken(c *gin.Context) {
	response.Success(c, http.StatusOK, callerIdentity(c))
}

// Update changes a profile's class membership.
func (h *ProfileHandler) Update(c *gin.Context) {
	var body gateway.UpdateProfileInput
	if !bindAndValidate(c, &body) {
		return
	}

	profile, err := h.gateway.UpdateProfile(requestContext(c), callerIdentity(c), c.Param("username"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// Progress returns lesson completion for a profile.
func (h *ProfileHandler) Progress(c *gin.Context) {
	rows, err := h.gateway.ProfileProgress(requestContext(c), callerIdentity(c), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// UpdateProgress upserts lesson completion for the calling profile.
func (h *ProfileHandler) UpdateProgress(c *gin.Context) {
	var body gateway.UpdateProgressInput
	if !bindAndValidate(c, &body) {
		return
	}

	progress, err := h.gateway.UpdateProgress(requestContext(c), callerIdentity(c), c.Param("username"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, progress)
}

// Heartbeat records the caller's presence.
func (h *ProfileHandler) Heartbeat(c *gin.Context) {
	if err := h.gateway.Heartbeat(requestContext(c), callerIdentity(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}
