package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
	"adminkit.org/internal/cache"
	"adminkit.org/internal/config"
	"adminkit.org/internal/grpcapi"
	"adminkit.org/internal/httpapi"
	"adminkit.org/internal/obs"
	"adminkit.org/internal/store/memory"
	"adminkit.org/internal/store/pg"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("adminkit-api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store  auth.RBACStore
		probes []httpapi.ReadyProbe
	)
	switch cfg.Store {
	case config.StorePostgres:
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		store = pgStore
		probes = append(probes, pgStore.Ready)
	default:
		log.Warn("using in-memory store; data is lost on restart")
		store = memory.New()
	}

	var (
		opts    []auth.RBACOption
		loader  *cache.PrincipalCache
		revoker auth.TokenRevoker = memory.NewRevoker()
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		loader = cache.NewPrincipalCache(rdb, nil, cfg.CacheTTL)
		revoker = cache.NewTokenRevoker(rdb)
		opts = append(opts, auth.WithInvalidator(loader))
		probes = append(probes, loader.Ping)
	}

	svc, err := auth.NewRBACService(store, opts...)
	if err != nil {
		return err
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		return err
	}
	var users auth.UserLoader = svc
	if loader != nil {
		loader.SetLoader(svc)
		users = loader
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret,
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		return err
	}

	policy := cfg.Policy()
	gate := authz.NewGate()
	ready := func(ctx context.Context) error {
		for _, p := range probes {
			if err := p(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	api, err := httpapi.New(httpapi.Options{
		Service:        svc,
		Tokens:         tokens,
		Revoker:        revoker,
		Loader:         users,
		Policy:         &policy,
		Gate:           gate,
		Ready:          ready,
		Version:        cfg.Version,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RateBurst:      cfg.RateBurst,
		RatePerSecond:  cfg.RateLimitRPS,
		AllowedOrigins: cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	authorizer := grpcapi.NewServer(users, policy, gate)
	gs := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.LoggingInterceptor))
	authorizer.Register(gs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", srv.Addr, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.Info("grpc listening", "addr", cfg.GRPCAddr)
		return gs.Serve(lis)
	})
	g.Go(func() error {
		authorizer.WatchReadiness(gctx, ready, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		authorizer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		gs.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}
