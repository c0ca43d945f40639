package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/swexcamp/adventd/internal/api"
	"github.com/swexcamp/adventd/internal/config"
	"github.com/swexcamp/adventd/internal/feed"
	"github.com/swexcamp/adventd/internal/registry"
	"github.com/swexcamp/adventd/internal/storage"
	"github.com/swexcamp/adventd/internal/timing"
)

func main() {
	cfg := config.Load()
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("create data dir")
	}

	reg, cleanup, err := buildRegistry(cfg)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	defer cleanup()

	server := &api.Server{
		Registry:   reg,
		Timer:      timing.NewTimer(reg),
		Feed:       feed.NewBroadcaster(),
		Log:        log,
		UserToken:  cfg.UserToken,
		AdminToken: cfg.AdminToken,
	}

	corsLayer := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Accept", "Content-Type"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           corsLayer.Handler(server.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "backend": cfg.Backend}).Info("adventd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
}

func buildRegistry(cfg config.Config) (registry.Registry, func(), error) {
	switch cfg.Backend {
	case config.BackendFile:
		return registry.NewFileRegistry(cfg.DataDir), func() {}, nil
	default:
		db, err := storage.Open(cfg.DBPath, registry.SchemaSQL)
		if err != nil {
			return nil, nil, err
		}
		return registry.NewSQLRegistry(db), func() { _ = db.Close() }, nil
	}
}
