package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/mpox-check/internal/classifier"
	"github.com/example/mpox-check/internal/config"
	"github.com/example/mpox-check/internal/grpcclient"
	"github.com/example/mpox-check/internal/handlers"
	"github.com/example/mpox-check/internal/logging"
	"github.com/example/mpox-check/internal/repository"
	"github.com/example/mpox-check/internal/session"
	"github.com/example/mpox-check/internal/sessiontoken"
	"github.com/example/mpox-check/internal/tflitemodel"
	"github.com/example/mpox-check/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	warnInsecureDefaults(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	clf, closeClassifier := initClassifier(ctx, cfg, logger)
	defer closeClassifier()

	store := session.NewStore(cfg.SessionTTL())
	opts := []usecase.Option{}

	if cfg.Database.DSN != "" {
		db := initDatabase(ctx, cfg.Database.DSN, logger)
		repo := repository.NewPredictionRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		opts = append(opts, usecase.WithRepository(repo))
	} else {
		logger.Info("database not configured, prediction log disabled")
	}

	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.Redis.Addr, logger)
		redisCancel()
		defer redisClient.Close()
		opts = append(opts, usecase.WithCache(usecase.NewRedisCache(redisClient, cfg.Redis.Prefix), cfg.CacheTTL()))
	} else {
		logger.Info("redis not configured, prediction cache disabled")
	}

	uc := usecase.NewWizardUseCase(store, clf, logger, opts...)
	issuer := sessiontoken.NewIssuer(cfg.Session.Secret, cfg.SessionTTL(), cfg.Session.CookieName)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger.Named("http")), handlers.CORS(cfg.Server.AllowedOrigins))
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	handlers.RegisterRoutes(r, handlers.NewHandler(uc, issuer, logger, cfg.Server.MaxUploadBytes))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sweepSessions(runCtx, store, time.Minute, logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("mpox wizard listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("model_backend", cfg.Model.Backend),
		zap.Bool("model_available", classifier.IsAvailable(clf)),
	)
	if err := serve(runCtx, server, nil, cfg.ShutdownTimeout(), logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// initClassifier loads the configured backend. A failure is logged and yields
// a classifier that rejects every request, so the wizard still serves pages.
func initClassifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (classifier.Classifier, func()) {
	switch cfg.Model.Backend {
	case config.BackendGRPC:
		client, err := grpcclient.DialClassifier(ctx, cfg.Model.GRPCAddr, cfg.DialTimeout(), logger)
		if err != nil {
			logger.Error("failed to connect to classifier", zap.String("addr", cfg.Model.GRPCAddr), zap.Error(err))
			return classifier.Unavailable{Cause: err}, func() {}
		}
		return client, func() { _ = client.Close() }
	default:
		model, err := tflitemodel.Load(cfg.Model.Path, cfg.Model.Threads, logger)
		if err != nil {
			logger.Error("failed to load model", zap.String("path", cfg.Model.Path), zap.Error(err))
			return classifier.Unavailable{Cause: err}, func() {}
		}
		return model, func() { _ = model.Close() }
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func sweepSessions(ctx context.Context, store *session.Store, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Debug("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}

// serve runs server on listener, or on server.Addr when listener is nil,
// until ctx is done. In-flight requests then get shutdownTimeout to finish.
func serve(ctx context.Context, server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger *zap.Logger) error {
	if listener == nil {
		var err error
		if listener, err = net.Listen("tcp", server.Addr); err != nil {
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("draining wizard requests", zap.Duration("timeout", shutdownTimeout))
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func warnInsecureDefaults(cfg *config.Config, logger *zap.Logger) {
	if cfg.UsesDefaultSecret() {
		logger.Warn("session tokens are signed with the built-in development secret",
			zap.String("override_with", config.EnvSessionSecret))
	}
}
