// Package app assembles the catalog service from its configuration. Both
// the server binary and catalogctl build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/title-ratings/internal/platform/auth"
	"github.com/example/title-ratings/internal/platform/db"
	"github.com/example/title-ratings/internal/platform/events"
	"github.com/example/title-ratings/internal/platform/httpserver"
	"github.com/example/title-ratings/internal/platform/natsconn"
	"github.com/example/title-ratings/services/catalog/internal/cache"
	"github.com/example/title-ratings/services/catalog/internal/config"
	"github.com/example/title-ratings/services/catalog/internal/grpcapi"
	"github.com/example/title-ratings/services/catalog/internal/handlers"
	"github.com/example/title-ratings/services/catalog/internal/metrics"
	"github.com/example/title-ratings/services/catalog/internal/query"
	"github.com/example/title-ratings/services/catalog/internal/store"
	"github.com/example/title-ratings/services/catalog/internal/syncer"
	"github.com/example/title-ratings/services/catalog/internal/tmdb"
)

type App struct {
	Config  config.Config
	Log     *zap.Logger
	Store   store.RecordStore
	Query   *query.Service
	Metrics *metrics.Metrics

	cache   *cache.RedisCache
	closers []func()
}

// New opens every backing resource named by cfg. Call Close when done.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	provider, err := a.openProvider()
	if err != nil {
		a.Close()
		return nil, err
	}

	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: "catalog", Optional: true, Logger: log})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if nc != nil {
		a.closers = append(a.closers, func() { drain(nc, log) })
	}
	pub, err := events.FromConn(nc, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	sy := syncer.New(st, log, pub, a.Metrics)
	a.Query = query.New(st, provider, sy, log, a.Metrics, query.Config{
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		ExternalPages:   cfg.ExternalPages,
		ExternalTimeout: cfg.ExternalTimeout,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.RecordStore, error) {
	switch a.Config.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.Open(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case config.DriverSQLite:
		lite, err := store.OpenSQLite(ctx, a.Config.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })
		return lite, nil
	case config.DriverMemory:
		a.Log.Warn("using in-memory record store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
}

// openProvider returns nil when the external catalog is disabled.
func (a *App) openProvider() (tmdb.Provider, error) {
	tc := a.Config.TMDB
	if tc.Disabled {
		a.Log.Info("external catalog disabled; serving local records only")
		return nil, nil
	}
	client := tmdb.New(tc.BaseURL, tmdb.ClientConfig{
		APIKey:         tc.APIKey,
		Timeout:        tc.Timeout,
		MaxRetries:     tc.MaxRetries,
		RetryBaseDelay: tc.RetryBaseDelay,
		MaxRetryWait:   tc.MaxRetryWait,
	},
		tmdb.WithCircuitBreaker(tmdb.NewBreaker("tmdb", tc.CBMaxRequests, tc.CBInterval, tc.CBTimeout, tc.CBFailureThreshold)),
		tmdb.WithRateLimit(tc.RPS, 1),
		tmdb.WithLogger(a.Log),
		tmdb.WithObserver(a.Metrics),
	)
	if a.Config.RedisURL == "" {
		return client, nil
	}
	rc, err := cache.NewRedisCache(a.Config.RedisURL, a.Config.ExternalCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rc.Close() })
	a.cache = rc
	return tmdb.NewCachedProvider(client, rc, a.Log), nil
}

// Ready reports whether the record store and, when configured, the
// external response cache answer.
func (a *App) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		return errors.New("record store unavailable")
	}
	if a.cache != nil {
		if err := a.cache.Ping(ctx); err != nil {
			return errors.New("external cache unavailable")
		}
	}
	return nil
}

// Router builds the HTTP surface.
func (a *App) Router() chi.Router {
	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:         a.Ready,
		RequestsPerMinute: a.Config.RateLimitRPM,
		Metrics:           a.Metrics.Handler(),
	})
	var verifier *auth.JWTVerifier
	if a.Config.JWTSecret != "" {
		verifier = &auth.JWTVerifier{Secret: []byte(a.Config.JWTSecret)}
	} else {
		a.Log.Warn("JWT_SECRET not set; admin routes are disabled")
	}
	handlers.Mount(r, a.Query, verifier)
	return r
}

// GRPCServer builds the RPC surface with health and reflection.
func (a *App) GRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcapi.RecoveryInterceptor(a.Log)))
	grpcapi.Register(srv, &grpcapi.CatalogQueryService{Catalog: a.Query, Log: a.Log})
	hs := health.NewServer()
	hs.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv
}

// ServeGRPC serves srv on addr until ctx is cancelled, then stops it with a
// 10s grace period.
func (a *App) ServeGRPC(ctx context.Context, srv *grpc.Server, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
	}()
	a.Log.Info("grpc server starting", zap.String("addr", addr))
	return srv.Serve(lis)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func drain(nc *nats.Conn, log *zap.Logger) {
	if err := nc.Drain(); err != nil {
		log.Warn("nats drain", zap.Error(err))
		nc.Close()
	}
}
