package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Poker/internal/adapters/blob"
	router "github.com/dkeye/Poker/internal/adapters/http"
	"github.com/dkeye/Poker/internal/adapters/identity"
	sig "github.com/dkeye/Poker/internal/adapters/signal"
	"github.com/dkeye/Poker/internal/adapters/store/memstore"
	"github.com/dkeye/Poker/internal/adapters/store/redisstore"
	"github.com/dkeye/Poker/internal/adapters/store/sqlitestore"
	"github.com/dkeye/Poker/internal/app"
	"github.com/dkeye/Poker/internal/app/orch"
	"github.com/dkeye/Poker/internal/config"
	"github.com/dkeye/Poker/internal/core"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (core.DocumentStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlitestore.New(cfg.SQLitePath)
	case "redis":
		s := redisstore.New(redisstore.NewClient(redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), cfg.RedisPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return memstore.New(), nil
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	log.Info().Str("driver", cfg.Store.Driver).Msg("store ready")

	signer, err := blob.NewSigner(cfg.Blob.BaseURL, []byte(cfg.Blob.SigningKey), cfg.Blob.URLTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init blob signer")
	}
	// Cached URLs must outlive the cache entry.
	blobs := blob.NewCachedResolver(signer, cfg.Blob.CacheSize, cfg.Blob.URLTTL/2)

	var tokens *identity.TokenService
	if cfg.Identity.JWTSecret != "" {
		if tokens, err = identity.NewTokenService(cfg.Identity.JWTSecret, cfg.Identity.TokenTTL); err != nil {
			log.Fatal().Err(err).Msg("failed to init token service")
		}
	} else {
		log.Warn().Msg("identity.jwt_secret unset, bearer tokens disabled")
	}

	reg := app.NewRegistry()
	rooms := app.NewRoomManager(store, reg, app.PolicyByName(cfg.Backpressure), sig.NewEncoder(blobs))
	o := orch.New(store, reg, rooms)

	limiter := sig.NewRoomRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Interval)
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Sweep()
			}
		}
	}()

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:    o,
		Tokens:  tokens,
		Blobs:   blobs,
		Signer:  signer,
		Limiter: limiter,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Poker server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	rooms.Close()
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}
	log.Info().Msg("Server exited gracefully")
}
