package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/robjohncolson/statrelay/internal/api"
	"github.com/robjohncolson/statrelay/internal/app"
	iauth "github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/cache"
	"github.com/robjohncolson/statrelay/internal/database"
	"github.com/robjohncolson/statrelay/internal/gateway"
	"github.com/robjohncolson/statrelay/internal/middleware"
	"github.com/robjohncolson/statrelay/internal/monitoring"
	"github.com/robjohncolson/statrelay/internal/realtime"
	"github.com/robjohncolson/statrelay/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("statrelay-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	deps, cleanup, err := buildDependencies(cfg, db, log)
	if err != nil {
		return err
	}
	defer cleanup()

	router, err := api.NewRouter(deps)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}
	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.StoreConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

// buildDependencies wires every component the router needs: counter stores in
// the redis -> database fallback order, the claims verifier, the response
// cache, the data gateway, the health monitor and the realtime hub.
func buildDependencies(cfg *app.Config, db *gorm.DB, log *zap.Logger) (api.Deps, func(), error) {
	nothing := func() {}

	var redisClient *cache.RedisClient
	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database counters", zap.Error(redisErr))
		} else {
			redisClient = client
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	var rateStore middleware.RateStore
	if redisClient != nil {
		rateStore = middleware.NewSharedRateStore(redisClient)
	} else {
		rateStore = middleware.NewSharedRateStore(cache.NewDatabaseStore(db))
	}

	limits, err := cfg.RateLimit.Limits()
	if err != nil {
		return api.Deps{}, nothing, err
	}
	policy, err := middleware.NewPolicy(rateStore, limits)
	if err != nil {
		return api.Deps{}, nothing, fmt.Errorf("initialise rate limit policy: %w", err)
	}

	verifier, err := iauth.NewVerifier(iauth.Config{
		Secret:   cfg.Auth.JWT.Secret,
		Issuer:   cfg.Auth.JWT.Issuer,
		Audience: cfg.Auth.JWT.Audience,
		TokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return api.Deps{}, nothing, fmt.Errorf("initialise claims verifier: %w", err)
	}

	responseCache := cache.NewResponseCache()

	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub()
	}

	var broadcaster gateway.Broadcaster
	if hub != nil {
		broadcaster = hub
	}
	gw, err := gateway.New(db, responseCache, broadcaster, gateway.Config{
		CacheTTL:        cfg.Cache.TTL,
		UpstreamTimeout: cfg.Cache.UpstreamTimeout,
	})
	if err != nil {
		return api.Deps{}, nothing, fmt.Errorf("initialise gateway: %w", err)
	}

	recorder := monitoring.NewRecorder()
	monitor, err := monitoring.NewMonitor(recorder, monitoring.NewDatabaseProbe(db), responseCache, monitoring.Config{
		Interval:           cfg.Monitoring.Interval,
		ProbeTimeout:       cfg.Monitoring.ProbeTimeout,
		P95Threshold:       cfg.Monitoring.P95Threshold,
		ErrorRateThreshold: cfg.Monitoring.ErrorRateThreshold,
	})
	if err != nil {
		return api.Deps{}, nothing, fmt.Errorf("initialise health monitor: %w", err)
	}
	monitor.Start()

	cleanup := func() {
		monitor.Stop()
		responseCache.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	return api.Deps{
		Gateway:  gw,
		Verifier: verifier,
		Policy:   policy,
		Recorder: recorder,
		Monitor:  monitor,
		Hub:      hub,
	}, cleanup, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
