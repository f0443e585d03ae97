package main

import (
	"context"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/agent"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/config"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/logging"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/marketclient"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/payment"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/retry"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/server"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/skills"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader("AGENT")
	role := loader.String("ROLE", "researcher")
	logger := logging.New("agent-"+role, loader.String("LOG_LEVEL", "info"))
	defer func() { _ = logger.Sync() }()

	profile, err := loadProfile(loader, role)
	if err != nil {
		logger.Fatal("load profile", zap.Error(err))
	}
	addr := loader.String("HTTP_ADDR", listenAddr(profile.Endpoint))

	market := marketclient.New(loader.String("MARKETPLACE_URL", "http://localhost:4000"))
	settler := payment.NewLedgerSettler(market, logger.Named("payment"))
	report := agent.NewReportBuilder(profile, market, settler, nil, logger.Named("report"))
	catalogue, err := agent.BuildCatalogue(profile, skills.Builtin(nil), report)
	if err != nil {
		logger.Fatal("build catalogue", zap.Error(err))
	}

	pool := agent.NewWorkerPool(loader.Int("WORKERS", 4), loader.Int("QUEUE_SIZE", 64), catalogue, market, logger.Named("worker"))
	pool.Start()
	svc := agent.NewService(profile, catalogue, pool, agent.NewHistory(loader.Int("HISTORY", 100)), logger)

	backoff := retry.Default()
	backoff.MaxAttempts = loader.Int("REGISTER_ATTEMPTS", backoff.MaxAttempts)
	registrar := agent.NewRegistrar(market, profile,
		loader.Duration("REGISTER_INTERVAL", agent.DefaultRefreshInterval), backoff, logger.Named("registrar"))
	registered := make(chan struct{})
	go func() {
		registrar.Run(ctx)
		close(registered)
	}()

	srv := &http.Server{
		Addr:    addr,
		Handler: svc.Handler(),
	}
	logger.Info("agent starting",
		zap.String("name", profile.Name), zap.String("wallet", profile.Wallet), zap.Strings("skills", profile.Skills))
	if err := server.Run(ctx, srv, 5*time.Second, logger); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	stop()
	<-registered
	pool.Stop()
	svc.Shutdown()
}

func loadProfile(loader config.Loader, role string) (agent.Profile, error) {
	var (
		profile agent.Profile
		err     error
	)
	if path := loader.String("PROFILE", ""); path != "" {
		profile, err = agent.LoadProfile(path)
	} else {
		profile, err = agent.BuiltinProfile(role)
	}
	if err != nil {
		return agent.Profile{}, err
	}
	profile.Wallet = loader.String("WALLET", profile.Wallet)
	profile.Endpoint = loader.String("ENDPOINT", profile.Endpoint)
	profile.Price = loader.String("PRICE", profile.Price)
	return profile, profile.Validate()
}

// listenAddr derives ":port" from an advertised endpoint URL.
func listenAddr(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Port() == "" {
		return ":4001"
	}
	return ":" + u.Port()
}
