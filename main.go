package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zvonok/internal/commands"
	"zvonok/internal/config"
	"zvonok/internal/logging"
	"zvonok/internal/notify"
	"zvonok/internal/presence"
	"zvonok/internal/storage"
	"zvonok/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, configPath, addUser string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if addUser != "" {
		return commands.AddUser(addUser, store)
	}

	var notifier *notify.Pusher
	if cfg.PushEnabled() {
		notifier = notify.NewPusher(store,
			cfg.Push.Subscriber,
			cfg.Push.VAPIDPublicKey,
			cfg.Push.VAPIDPrivateKey,
			logger)
	}

	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, store, notifier, prometheus.DefaultRegisterer, logger)
	wsServer := ws.NewServer(hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleConnections)
	apiServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	logger.Info("starting relay",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("metrics_addr", cfg.MetricsAddr))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := metricsServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api server shutdown error", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

func main() {
	configPath := flag.String("config", "", "Path to config file (optional, env vars override)")
	addUser := flag.String("add-user", "", "Seed a user row and exit (format id:name[:profilePic])")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *addUser); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
