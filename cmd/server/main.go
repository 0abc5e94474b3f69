package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"keybalancer-go/internal/balancer"
	"keybalancer-go/internal/config"
	"keybalancer-go/internal/logging"
	mw "keybalancer-go/internal/middleware"
	srv "keybalancer-go/internal/server"
	"keybalancer-go/internal/store"
	"keybalancer-go/internal/users"

	log "github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 10 * time.Second
	proxyToggleKey  = "use_proxies_for_balancer"
)

// proxyToggleSetting resolves the effective egress-proxy flag. A value
// persisted through the admin surface wins over the config file; the file
// value applies only until the toggle is first set at runtime.
func proxyToggleSetting(ctx context.Context, backend store.Backend, fromFile bool) bool {
	if v, err := backend.GetConfig(ctx, proxyToggleKey); err == nil {
		if on, err := strconv.ParseBool(v); err == nil {
			return on
		}
	}
	return fromFile
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *debug {
		cfg.Debug = true
	}
	if err := logging.Setup(logging.Options{Debug: cfg.Debug, LogFile: cfg.LogFile}); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}
	log.Infof("Starting keybalancer (config: %s)", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := buildStorageBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("primary storage backend initialization failed; falling back to file backend")
		cfg.StorageBackend = "file"
		backend, err = buildStorageBackend(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("file backend fallback failed")
		}
	}
	defer func() { _ = backend.Close() }()

	cfg.SetProxiesEnabled(proxyToggleSetting(ctx, backend, cfg.ProxiesEnabled()))

	siteStore := store.NewSiteStore(backend)
	userStore, err := users.NewStore(ctx, backend, time.Duration(cfg.SessionTTLHours)*time.Hour)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize user store")
	}
	if err := userStore.Bootstrap(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.WithError(err).Fatal("failed to bootstrap admin account")
	}

	dispatcher := balancer.NewDispatcher(siteStore, cfg.ProxiesEnabled)
	engine := balancer.NewEngine(balancer.NewRegistry(dispatcher))

	watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
		cfg.SetProxiesEnabled(proxyToggleSetting(ctx, backend, next.ProxiesEnabled()))
		if err := logging.Setup(logging.Options{Debug: next.Debug, LogFile: next.LogFile}); err != nil {
			log.WithError(err).Warn("failed to apply reloaded logging settings")
		}
		log.Info("configuration reloaded")
	})
	if err != nil {
		log.WithError(err).Warn("config watcher unavailable; reload on change disabled")
	} else {
		defer watcher.Stop()
	}

	httpServer := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Port),
		Handler: srv.New(cfg, srv.Dependencies{
			Sites:   siteStore,
			Users:   userStore,
			Engine:  engine,
			Backend: backend,
		}).BuildEngine(),
	}

	mw.SafeGo("http-server", func() {
		log.Infof("API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
		}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	log.Info("Server stopped")
}

func buildStorageBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	var backend store.Backend
	switch cfg.StorageBackend {
	case "redis":
		backend = store.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	default:
		backend = store.NewFileBackend(cfg.DataDir)
	}
	if err := backend.Initialize(ctx); err != nil {
		return nil, err
	}
	log.WithField("backend", cfg.StorageBackend).Info("storage backend ready")
	return backend, nil
}
