package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/activity"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/broadcast"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/config"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/logging"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/server"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader("MARKET")
	addr := loader.String("HTTP_ADDR", ":4000")
	recentWindow := loader.Int("RECENT_WINDOW", ledger.DefaultRecentWindow)
	jobTTL := loader.Duration("JOB_TTL", 0)
	reapInterval := loader.Duration("REAP_INTERVAL", time.Minute)
	queueSize := loader.Int("OBSERVER_QUEUE", 64)
	metricsInterval := loader.Duration("METRICS_INTERVAL", 10*time.Second)

	logger := logging.New("marketplace", loader.String("LOG_LEVEL", "info"))
	defer func() { _ = logger.Sync() }()

	tel, err := telemetry.New("market", metricsInterval, 6*metricsInterval)
	if err != nil {
		logger.Fatal("init telemetry", zap.Error(err))
	}

	hub := broadcast.NewHub(queueSize, logger.Named("broadcast"))
	ring := activity.NewRingSink(loader.Int("ACTIVITY_SIZE", 200))
	pipeline := activity.NewPipeline(queueSize, logger)
	pipeline.RegisterSink(ring)
	if loader.Bool("LOG_ACTIVITY", false) {
		pipeline.RegisterSink(activity.NewLogSink(logger.Named("activity")))
	}
	pipeline.Start()
	hub.Subscribe(pipeline)
	svc := ledger.NewService(ledger.Deps{
		Publisher: hub,
		Metrics:   tel,
		Logger:    logger,
	}, ledger.Config{
		RecentWindow: recentWindow,
		JobTTL:       jobTTL,
	})
	go svc.RunExpiry(ctx, reapInterval)

	srv := &http.Server{
		Addr:    addr,
		Handler: svc.Handler(ledger.Routes{
			Feed:     http.HandlerFunc(hub.ServeWS),
			Metrics:  tel.Handler(),
			Activity: activity.Handler(ring),
		}),
	}

	logger.Info("marketplace starting",
		zap.Int("recentWindow", recentWindow), zap.Duration("jobTTL", jobTTL))
	if err := server.Run(ctx, srv, 5*time.Second, logger); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	hub.Close()
	pipeline.Stop()
}
