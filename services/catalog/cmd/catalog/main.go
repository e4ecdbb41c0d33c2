package main

import (
	"context"

	"go.uber.org/zap"

	platformconfig "github.com/example/title-ratings/internal/platform/config"
	"github.com/example/title-ratings/internal/platform/httpserver"
	"github.com/example/title-ratings/internal/platform/logging"
	"github.com/example/title-ratings/internal/platform/run"
	"github.com/example/title-ratings/services/catalog/internal/app"
	"github.com/example/title-ratings/services/catalog/internal/config"
)

func main() {
	base, err := platformconfig.Load("catalog")
	if err != nil {
		panic(err)
	}
	log, err := logging.New(base.ServiceName, base.LogLevel, base.IsProd())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config", zap.Error(err))
		run.Exit(1)
	}

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("startup", zap.Error(err))
		run.Exit(1)
	}

	httpSrv := httpserver.New(httpserver.Options{Addr: base.HTTP.Addr, Logger: log, Router: a.Router()})
	grpcSrv := a.GRPCServer()

	code := run.New(log).WithSignals(
		httpSrv.Run,
		func(ctx context.Context) error { return a.ServeGRPC(ctx, grpcSrv, cfg.GRPCAddr) },
	)
	a.Close()
	run.Exit(code)
}
