package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"parley/internal/app"
	"parley/internal/relay"
	"parley/internal/room"
)

func main() {
	configFile := flag.String("config", "", "config file (defaults + PARLEY_* env otherwise)")
	flag.Parse()

	cfg, err := app.Load(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}
	log, err := cfg.Logger()
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}

	sink, err := cfg.Sink(log)
	if err != nil {
		log.WithError(err).Fatal("audit sink")
	}
	defer sink.Close()

	coordinator := room.NewCoordinator(room.NewStore(), sink, log)
	server := relay.NewServer(coordinator, sink, cfg.Audit.ExportToken, log)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Routes(),
	}

	go func() {
		log.WithFields(logrus.Fields{
			"listen": cfg.Listen,
			"audit":  cfg.Audit.Backend,
		}).Info("relay listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}
