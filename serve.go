package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/Billy-Davies-2/pricing-game/internal/analytics"
	"github.com/Billy-Davies-2/pricing-game/internal/config"
	"github.com/Billy-Davies-2/pricing-game/internal/dal"
	"github.com/Billy-Davies-2/pricing-game/internal/economy"
	"github.com/Billy-Davies-2/pricing-game/internal/game"
	grpcserver "github.com/Billy-Davies-2/pricing-game/internal/grpc"
	"github.com/Billy-Davies-2/pricing-game/internal/handlers"
	"github.com/Billy-Davies-2/pricing-game/internal/leaderboard"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

const (
	serverTimeout   = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	analyticsName   = "pricing-analytics"
)

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger.InitWith(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting pricing game", "version", releaseVersion, "environment", cfg.Environment)

	defaults, err := config.LoadDefaults(cfg.DefaultsFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	svc := game.NewService(store, bus, economy.NewModel(nil), game.WithDefaults(defaults))
	go svc.Watch(ctx, bus)

	board := leaderboard.NewAggregator(store, bus)
	go board.Run(ctx)

	consumer := analytics.NewConsumer(sink)
	if err := bus.durable.SubscribeJetStream(analyticsName, consumer.Handle); err != nil {
		logger.Warn("Durable analytics consumer unavailable, using local subscription", "error", err)
		go consumer.Run(ctx, bus)
	}

	checks := map[string]handlers.Checker{
		"store": func(ctx context.Context) error {
			_, err := store.GetGame(ctx)
			if errors.Is(err, dal.ErrNotFound) {
				return nil
			}
			return err
		},
	}
	api := handlers.NewAPIHandlers(svc, bus, board, sink, cfg.PublicURL)
	authProvider := openAuth(cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)),
		Handler:           handlers.Routes(api, authProvider, checks),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: serverTimeout,
	}

	grpcLis, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.GRPCPort)))
	if err != nil {
		return fmt.Errorf("listen for gRPC: %w", err)
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.InstructorInterceptor(authProvider)))
	grpcserver.RegisterPricingServiceServer(grpcSrv, grpcserver.NewServer(svc, bus))

	errs := make(chan error, 2)
	go func() {
		logger.Info("gRPC server starting", "address", grpcLis.Addr().String())
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("serve gRPC: %w", err)
		}
	}()
	go func() {
		logger.Info("Server starting", "address", srv.Addr, "join_url", cfg.PublicURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-errs:
		logger.Error("Server failed", "error", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP shutdown incomplete", "error", serr)
	}

	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}

	cancel()
	return err
}
