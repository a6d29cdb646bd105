package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vendepos/backend/internal/archive"
	"vendepos/backend/internal/cache"
	"vendepos/backend/internal/config"
	"vendepos/backend/internal/httpapi"
	"vendepos/backend/internal/logger"
	"vendepos/backend/internal/service"
	"vendepos/backend/internal/store"
	"vendepos/backend/internal/store/memory"
	pgstore "vendepos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	if strings.TrimSpace(cfg.LogFormat) != "" {
		lc := logger.DefaultConfig()
		lc.Format = cfg.LogFormat
		if cfg.LogLevel != "" {
			lc.Level = cfg.LogLevel
		}
		return logger.New(lc)
	}
	return logger.NewForEnvironment(cfg.AppEnv, cfg.LogLevel)
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		mem, err := memory.NewSeeded(log)
		if err != nil {
			return err
		}
		repo = mem
		log.Info("repository: in-memory")
	}

	statsCache := cache.StatsCache(cache.NoopStatsCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStatsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			statsCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("cache: noop")
	}

	receipts := archive.ReceiptArchive(archive.NoopReceiptArchive{})
	if cfg.S3Bucket != "" {
		s3Archive, err := archive.NewS3ReceiptArchive(ctx, archive.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		}, archive.WithLogger(log), archive.WithKeyPrefix("receipts/"))
		if err != nil {
			log.Warn("receipt archive disabled", zap.Error(err))
		} else {
			receipts = s3Archive
			log.Info("receipt archive: s3", zap.String("bucket", cfg.S3Bucket))
		}
	}

	svc := service.New(repo,
		service.WithLogger(log),
		service.WithStatsCache(statsCache, cfg.StatsCacheTTL()),
		service.WithReceiptArchive(receipts),
		service.WithStockPolicy(cfg.CheckoutStockPolicy),
		service.WithLocation(loc),
		service.WithStoreName(cfg.StoreName),
		service.WithLowStockThreshold(cfg.LowStockThreshold),
	)

	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, log)
	if err != nil {
		return err
	}
	seeded, err := auth.EnsureAdmin(ctx, cfg.SeedAdminPassword)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if seeded {
		log.Info("created initial admin account")
	}

	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("POS backend listening",
			zap.String("addr", cfg.Address()),
			zap.String("stock_policy", cfg.CheckoutStockPolicy),
			zap.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedAdminPassword != "" {
		if err := validatePasswordStrength(cfg.SeedAdminPassword); err != nil {
			return fmt.Errorf("SEED_ADMIN_PASSWORD is too weak: %w", err)
		}
	}
	if cfg.IsProduction() && strings.Contains(cfg.AllowedOrigin, "*") {
		return fmt.Errorf("ALLOWED_ORIGIN must not be a wildcard in production")
	}
	return nil
}

// validatePasswordStrength rejects short passwords, single repeated
// characters and a short list of well-known defaults.
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("must be at least 8 characters")
	}
	known := map[string]bool{
		"password": true, "12345678": true, "admin123": true, "qwerty123": true,
		"administrador": true, "vendepos": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}
	return nil
}
