package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"csms/internal/command"
	"csms/internal/config"
	"csms/internal/db"
	"csms/internal/gatewayclient"
	"csms/internal/httpapi"
	"csms/internal/notifier"
	natsnotifier "csms/internal/notifier/nats"
	"csms/internal/repo"
	"csms/internal/scheduler"
	"csms/internal/services"

	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	points := repo.NewChargePointsRepo(d)
	tags := repo.NewIdTagsRepo(d)
	sessions := repo.NewSessionsRepo(d)
	meters := repo.NewMeterValuesRepo(d)
	statuses := repo.NewStatusesRepo(d)
	commands := repo.NewCommandsRepo(d)
	messages := repo.NewMessagesRepo(d)

	transport := gatewayclient.New(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	transport.Commands = commands

	queue := scheduler.New(log)
	events := make(chan notifier.Notification, 64)

	auth := services.NewAuthorization(tags, log)
	station := services.NewStation(points, statuses, cfg.HeartbeatInterval, events, log)
	telemetry := services.NewTelemetry(sessions, meters, events, log)
	ledger := services.NewLedger(auth, telemetry, sessions, tags, points, statuses, queue, transport,
		cfg.SettleDelay, cfg.InterMessageDelay, events, log)
	availability := services.NewAvailability(statuses, ledger, queue, transport,
		cfg.SettleDelay, cfg.InterMessageDelay, log)

	handlers := command.Handlers(ledger, availability)

	nc := natsnotifier.New(cfg.NatsURL, log)
	nc.SetChannel(events)
	nc.SetTimeout(cfg.CommandTimeout)
	for action, fn := range handlers {
		nc.AddHandler(action, fn)
	}
	if err := nc.Start(); err != nil {
		log.Warnf("nats unavailable, command plane limited to HTTP: %v", err)
	} else {
		defer nc.Stop()
	}

	srv := httpapi.NewServer(cfg, points, sessions, statuses, messages,
		station, auth, telemetry, ledger, handlers, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("central system core listening on %v", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = httpServer.Shutdown(ctx2)
	queue.Shutdown()
	log.Info("central system shutdown complete")
}
