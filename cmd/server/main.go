package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mytechsonamy/mytrader-sub018/internal/broadcast"
	"github.com/mytechsonamy/mytrader-sub018/internal/config"
	apperrors "github.com/mytechsonamy/mytrader-sub018/internal/errors"
	"github.com/mytechsonamy/mytrader-sub018/internal/logging"
	"github.com/mytechsonamy/mytrader-sub018/internal/producer"
	"github.com/mytechsonamy/mytrader-sub018/internal/server"
)

type producers struct {
	prices     *producer.PriceFeed
	signals    *producer.SignalScanner
	indicators *producer.IndicatorFeed
	portfolios *producer.PortfolioValuer
}

func (p producers) start() {
	p.prices.Start()
	p.signals.Start()
	p.indicators.Start()
	p.portfolios.Start()
}

func (p producers) stop() {
	p.prices.Stop()
	p.signals.Stop()
	p.indicators.Stop()
	p.portfolios.Stop()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(srv *server.Server, prods producers) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		prods.stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	clock := clockwork.NewRealClock()

	// Registries are constructed once and injected everywhere; there is no
	// global subscription state.
	registry := broadcast.NewConnectionRegistry(clock)
	groups := broadcast.NewGroupIndex()
	throttle := broadcast.NewThrottleRegistry(clock)
	tracker := broadcast.NewErrorRateTracker(clock, cfg.ErrorWindow, cfg.ErrorCeiling)
	coordinator := broadcast.NewCoordinator(registry, groups, throttle, tracker, clock, cfg.SendTimeout)

	prices := producer.NewPriceFeed(coordinator, clock, cfg.Symbols, cfg.PriceTickInterval, cfg.PriceMinInterval)
	prods := producers{
		prices:     prices,
		signals:    producer.NewSignalScanner(coordinator, clock, cfg.Symbols, cfg.SignalInterval),
		indicators: producer.NewIndicatorFeed(coordinator, groups, clock, cfg.PriceTickInterval, cfg.PriceMinInterval),
		portfolios: producer.NewPortfolioValuer(coordinator, groups, clock, cfg.PortfolioInterval),
	}

	snapshots := func(dataType string, _ map[string]string) (any, error) {
		switch dataType {
		case "prices":
			return prices.Snapshot(), nil
		default:
			return nil, apperrors.NotFoundError("unknown snapshot type").WithContext("data_type", dataType)
		}
	}

	sessions := []*broadcast.ChannelSession{
		broadcast.NewChannelSession("dashboard", registry, groups, tracker, clock, snapshots, cfg.SendTimeout),
		broadcast.NewChannelSession("market-data", registry, groups, tracker, clock, snapshots, cfg.SendTimeout),
	}

	limits := server.NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst)
	srv := server.NewServer(cfg, sessions, limits, clock)

	prods.start()
	done := runGracefulShutdown(srv, prods)

	slog.Info("Server starting", "port", cfg.Port, "env", cfg.AppEnv, "symbols", cfg.Symbols)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
