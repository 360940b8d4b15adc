package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/gateway"
	"github.com/robjohncolson/statrelay/internal/handlers"
	"github.com/robjohncolson/statrelay/internal/middleware"
	"github.com/robjohncolson/statrelay/internal/monitoring"
	"github.com/robjohncolson/statrelay/internal/realtime"
)

// Deps carries the wired components the router needs.
type Deps struct {
	Gateway  *gateway.Gateway
	Verifier *auth.Verifier
	Policy   *middleware.Policy
	Recorder *monitoring.Recorder
	Monitor  *monitoring.Monitor
	Hub      *realtime.Hub
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway must be provided")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("claims verifier must be provided")
	}
	if deps.Policy == nil {
		return nil, fmt.Errorf("rate limit policy must be provided")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("health monitor must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(deps.Recorder))

	profiles := handlers.NewProfileHandler(deps.Gateway, deps.Verifier)
	answers := handlers.NewAnswerHandler(deps.Gateway)
	votes := handlers.NewVoteHandler(deps.Gateway)
	badges := handlers.NewBadgeHandler(deps.Gateway)
	classes := handlers.NewClassHandler(deps.Gateway)
	health := handlers.NewHealthHandler(deps.Monitor)

	optionalAuth := middleware.OptionalAuth(deps.Verifier)
	requireAuth := middleware.RequireAuth(deps.Verifier)
	limit := func(class middleware.OpClass) gin.HandlerFunc {
		return middleware.RateLimit(deps.Policy, class)
	}

	// Operational endpoints sit outside the rate-limited API surface.
	r.GET("/healthz", health.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Hub != nil {
		rt := handlers.NewRealtimeHandler(deps.Hub, deps.Verifier)
		r.GET("/ws", rt.Serve)
	}

	api := r.Group("/api")

	api.POST("/profiles", optionalAuth, limit(middleware.OpProfileCreate), profiles.Create)
	api.POST("/auth/verify", requireAuth, limit(middleware.OpAuth), profiles.VerifyToken)

	questions := api.Group("/questions")
	{
		questions.GET("/:id/answers", optionalAuth, limit(middleware.OpRead), answers.ListByQuestion)
		questions.GET("/:id/consensus", optionalAuth, limit(middleware.OpRead), answers.Consensus)
		questions.POST("/:id/answers", requireAuth, limit(middleware.OpWrite), answers.Submit)
	}

	api.POST("/answers/batch", requireAuth, limit(middleware.OpWrite), answers.SubmitBatch)
	api.POST("/answers/:id/votes", requireAuth, limit(middleware.OpWrite), votes.Cast)
	api.POST("/badges", requireAuth, limit(middleware.OpWrite), badges.Award)

	classGroup := api.Group("/classes")
	{
		classGroup.GET("/:id/peers", optionalAuth, limit(middleware.OpRead), classes.Peers)
		classGroup.GET("/:id/roster", requireAuth, limit(middleware.OpRead), classes.Roster)
		classGroup.GET("/:id/leaderboard", optionalAuth, limit(middleware.OpRead), classes.Leaderboard)
	}

	profileGroup := api.Group("/profiles")
	{
		profileGroup.PUT("/:username", requireAuth, limit(middleware.OpWrite), profiles.Update)
		profileGroup.GET("/:username/progress", requireAuth, limit(middleware.OpRead), profiles.Progress)
		profileGroup.PUT("/:username/progress", requireAuth, limit(middleware.OpWrite), profiles.UpdateProgress)
	}

	api.POST("/heartbeat", requireAuth, limit(middleware.OpHeartbeat), profiles.Heartbeat)

	return r, nil
}
