package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"promosuite.app/internal/auth"
	"promosuite.app/internal/backend"
	"promosuite.app/internal/backend/memory"
	"promosuite.app/internal/backend/pg"
	"promosuite.app/internal/config"
	"promosuite.app/internal/deletion"
	"promosuite.app/internal/httpapi"
	"promosuite.app/internal/lock"
	"promosuite.app/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := obs.InitLogger(obs.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}
	log := obs.Logger()
	defer func() { _ = log.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	tokens, err := auth.NewTokenVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}

	var (
		be      backend.Backend
		pinger  backend.Pinger
		cleanup []func()
	)
	switch cfg.Backend {
	case "postgres":
		pgb, err := pg.Open(cfg.PGDSN, tokens)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		cleanup = append(cleanup, func() { _ = pgb.Close() })
		be, pinger = pgb, pgb
	default:
		mem := memory.New(memory.WithTokenVerifier(tokens))
		mem.RegisterRoutine(cfg.PrivilegedRoutine, memory.OAuthTeardown)
		be, pinger = mem, mem
		log.Warn("using in-memory backend; data is not persisted")
	}
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	var (
		locker     lock.Locker = lock.NewLocal()
		lockPinger backend.Pinger
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cleanup = append(cleanup, func() { _ = rdb.Close() })
		rl := lock.NewRedis(rdb, "promosuite")
		locker, lockPinger = rl, rl
	}

	svc := deletion.NewService(be, deletion.Options{
		Resources:         cfg.Resources,
		CallTimeout:       cfg.CallTimeout,
		PrivilegedRoutine: cfg.PrivilegedRoutine,
		Locker:            locker,
		LockTTL:           cfg.LockTTL,
		Logger:            log,
	})

	probe := httpapi.ReadyProbe{Backend: pinger, Lock: lockPinger}
	api := httpapi.New(probe, version, svc, httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// A full sweep makes one bounded call per collection plus the identity chain.
		WriteTimeout: time.Duration(len(cfg.Resources)*2+4)*cfg.CallTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	health := httpapi.NewHealthServer(probe)
	grpcSrv := httpapi.NewGRPCServer(health)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go health.Run(ctx, 10*time.Second)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.WriteTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	log.Info("stopped")
	return nil
}
