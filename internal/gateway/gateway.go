package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/robjohncolson/statrelay/internal/cache"
	"github.com/robjohncolson/statrelay/internal/realtime"
	appErrors "github.com/robjohncolson/statrelay/pkg/errors"
	"github.com/robjohncolson/statrelay/pkg/logger"
	"github.com/robjohncolson/statrelay/pkg/metrics"
)

// DefaultUpstreamTimeout bounds every row-store round trip.
const DefaultUpstreamTimeout = 2 * time.Second

// Broadcaster fans out write events to realtime subscribers. Delivery is
// best-effort; the gateway never blocks on it.
type Broadcaster interface {
	Broadcast(stream string, message realtime.Message)
}

// Gateway is the only component that talks to the row-store. Every read goes
// through the response cache; every write re-validates ownership, then
// invalidates the cache-key families it could affect.
type Gateway struct {
	db      *gorm.DB
	cache   *cache.ResponseCache
	hub     Broadcaster
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger
}

// Config tunes the gateway.
type Config struct {
	CacheTTL        time.Duration
	UpstreamTimeout time.Duration
}

// New constructs a Gateway. The broadcaster may be nil when realtime fan-out
// is disabled.
func New(db *gorm.DB, responseCache *cache.ResponseCache, hub Broadcaster, cfg Config) (*Gateway, error) {
	if db == nil {
		return nil, errors.New("gateway: db is required")
	}
	if responseCache == nil {
		return nil, errors.New("gateway: response cache is required")
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}

	return &Gateway{
		db:      db,
		cache:   responseCache,
		hub:     hub,
		ttl:     ttl,
		timeout: timeout,
		log:     logger.WithModule("gateway"),
	}, nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, g.timeout)
}

// classify translates raw store errors into the taxonomy; driver error shapes
// never leak to callers.
func classify(operation string, err error) error {
	if err == nil {
		metrics.UpstreamQueries.WithLabelValues(operation, "ok").Inc()
		return nil
	}
	metrics.UpstreamQueries.WithLabelValues(operation, "error").Inc()

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return appErrors.ErrNotFound.WithInternal(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return appErrors.ErrUpstream.WithMessage("Upstream query timed out").WithInternal(err)
	case isUniqueConstraintError(err):
		return appErrors.ErrConflict.WithInternal(err)
	default:
		return appErrors.ErrUpstream.WithInternal(err)
	}
}

// isUniqueConstraintError detects uniqueness violations for Postgres and the
// SQLite test driver.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}

func (g *Gateway) broadcast(stream, event string, data any) {
	if g.hub == nil {
		return
	}
	g.hub.Broadcast(stream, realtime.Message{Event: event, Data: data})
}
