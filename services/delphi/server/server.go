// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server wires the delphi service together: config, logging,
// tracing, the badger store, and the HTTP router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianDelphi/pkg/logging"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/aggregate"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/config"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/handlers"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/middleware"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/observability"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/resolver"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/routes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage/badgerstore"
)

const serviceName = "delphi-service"

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// openStore builds the badger-backed store from config.
func openStore(cfg config.Config, logger *slog.Logger) (*badgerstore.Store, error) {
	storeCfg := badgerstore.DefaultConfig(cfg.StorePath)
	if cfg.StoreInMemory {
		storeCfg = badgerstore.InMemoryConfig()
	}
	storeCfg.Logger = logger
	return badgerstore.Open(storeCfg)
}

// buildResolver picks the id resolver per config. "static" serves
// deployments where the pipeline already writes records under the
// public conversation and report ids.
func buildResolver(cfg config.Config, store storage.Store) resolver.Resolver {
	if cfg.ResolverMode == "static" {
		return resolver.Static{}
	}
	return resolver.NewStoreResolver(store)
}

// NewRouter assembles the gin engine with middleware and all delphi
// routes. Split out from Run so tests can drive the full HTTP surface
// against an in-memory store.
func NewRouter(cfg config.Config, env *handlers.Env) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.APIKey(cfg.APIKey))
	if cfg.RateLimitPerSecond > 0 {
		router.Use(middleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}
	routes.SetupRoutes(router, env)
	return router
}

// Run starts the delphi service and blocks until SIGINT/SIGTERM, then
// shuts down gracefully: drain HTTP, flush traces, close the store.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   cfg.SlogLevel(),
		Service: "delphi",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	config.WatchLogLevel(configPath, logger.Slog(), stopWatch, logger.SetLevel)

	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	store, err := openStore(cfg, logger.Slog())
	if err != nil {
		return fmt.Errorf("failed to open the store: %w", err)
	}
	defer store.Close()

	metrics := observability.InitMetrics()
	if err := handlers.RegisterValidations(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	env := &handlers.Env{
		Store:    store,
		Fetcher:  aggregate.NewFetcher(store, logger.Slog(), metrics),
		Resolver: buildResolver(cfg, store),
		Metrics:  metrics,
		Logger:   logger.Slog(),
		Events:   handlers.NewHub(logger.Slog(), metrics),
	}

	router := NewRouter(cfg, env)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Slog().Info("starting the delphi server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Slog().Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
