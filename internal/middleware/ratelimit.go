package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/pkg/errors"
	"github.com/robjohncolson/statrelay/pkg/logger"
	"github.com/robjohncolson/statrelay/pkg/metrics"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// OpClass buckets requests into operation families with distinct quotas.
type OpClass string

const (
	OpProfileCreate OpClass = "profile_create"
	OpAuth          OpClass = "auth"
	OpWrite         OpClass = "write"
	OpHeartbeat     OpClass = "heartbeat"
	OpRead          OpClass = "read"
)

// LimitConfig is the quota for one operation class.
type LimitConfig struct {
	Max    int
	Window time.Duration
}

// Limits carries per-class quotas plus the teacher multiplier applied to
// every class.
type Limits struct {
	Classes           map[OpClass]LimitConfig
	TeacherMultiplier int
}

// DefaultLimits returns the classroom-scale quotas used when no configuration
// overrides them.
func DefaultLimits() Limits {
	return Limits{
		Classes: map[OpClass]LimitConfig{
			OpProfileCreate: {Max: 5, Window: time.Hour},
			OpAuth:          {Max: 20, Window: time.Minute},
			OpWrite:         {Max: 30, Window: time.Minute},
			OpHeartbeat:     {Max: 120, Window: time.Minute},
			OpRead:          {Max: 120, Window: time.Minute},
		},
		TeacherMultiplier: 2,
	}
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Policy maps a request and optional identity to a bucket and enforces its
// window quota against a pluggable counter store.
type Policy struct {
	store  RateStore
	limits Limits
	log    *zap.Logger
}

// NewPolicy validates quotas and constructs a Policy. A non-positive Max or
// Window for any class is a startup error, never a runtime one.
func NewPolicy(store RateStore, limits Limits) (*Policy, error) {
	if store == nil {
		return nil, fmt.Errorf("ratelimit: counter store is required")
	}
	if len(limits.Classes) == 0 {
		limits = DefaultLimits()
	}
	for class, cfg := range limits.Classes {
		if cfg.Max <= 0 {
			return nil, fmt.Errorf("ratelimit: class %s has non-positive max %d", class, cfg.Max)
		}
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("ratelimit: class %s has non-positive window", class)
		}
	}
	if limits.TeacherMultiplier <= 0 {
		limits.TeacherMultiplier = 1
	}

	return &Policy{
		store:  store,
		limits: limits,
		log:    logger.WithModule("ratelimit"),
	}, nil
}

// Check increments the request's bucket and decides whether it may proceed.
// It never errors for normal traffic; a failing counter store fails open.
func (p *Policy) Check(c *gin.Context, class OpClass, identity auth.Identity) Decision {
	cfg, ok := p.limits.Classes[class]
	if !ok {
		// A class missing from config still gets its built-in quota rather
		// than running unlimited with a zero advertised limit.
		cfg, ok = DefaultLimits().Classes[class]
		if !ok {
			return Decision{Allowed: true}
		}
	}

	max := cfg.Max
	if identity.IsTeacher() {
		max *= p.limits.TeacherMultiplier
	}

	count, ttl, err := p.store.Increment(c.Request.Context(), bucketKey(class, identity, c.ClientIP()), cfg.Window)
	if err != nil {
		// The limiter must not take the API down with it.
		p.log.Warn("counter store failure, allowing request", zap.Error(err))
		return Decision{Allowed: true, Limit: max}
	}

	decision := Decision{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: maxInt(0, max-count),
	}
	if !decision.Allowed {
		decision.RetryAfter = ttl
	}
	return decision
}

// bucketKey prefers the authenticated username so one shared classroom IP
// cannot exhaust everyone's quota, and one heavy user cannot starve peers
// behind the same NAT.
func bucketKey(class OpClass, identity auth.Identity, clientIP string) string {
	if !identity.IsAnonymous() {
		return string(class) + ":user:" + identity.Username
	}
	return string(class) + ":ip:" + clientIP
}

// RateLimit returns a middleware enforcing the policy for one operation
// class. It must run after the auth middleware so the identity is resolved.
func RateLimit(policy *Policy, class OpClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFrom(c)
		decision := policy.Check(c, class, identity)

		if decision.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}

		if !decision.Allowed {
			metrics.RateLimitDecisions.WithLabelValues(string(class), "reject").Inc()
			retrySeconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(retrySeconds))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		metrics.RateLimitDecisions.WithLabelValues(string(class), "allow").Inc()
		c.Next()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
