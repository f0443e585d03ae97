package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/retry"
)

// DefaultRefreshInterval is how often an agent re-registers.
const DefaultRefreshInterval = 5 * time.Minute

// Registrar keeps an agent's marketplace record fresh.
type Registrar struct {
	registry Registry
	profile  Profile
	interval time.Duration
	backoff  retry.Config
	logger   *zap.Logger
}

// NewRegistrar constructs a registrar. interval <= 0 uses DefaultRefreshInterval.
func NewRegistrar(registry Registry, profile Profile, interval time.Duration, backoff retry.Config, logger *zap.Logger) *Registrar {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Registrar{registry: registry, profile: profile, interval: interval, backoff: backoff, logger: logger}
}

// RegisterOnce registers the profile, retrying while the marketplace is
// unreachable.
func (r *Registrar) RegisterOnce(ctx context.Context) (ledger.Agent, error) {
	var agent ledger.Agent
	err := retry.Do(ctx, r.backoff, r.logger, func(ctx context.Context) error {
		var err error
		agent, err = r.registry.Register(ctx, r.profile.RegisterRequest())
		return err
	}, transient)
	if err != nil {
		return ledger.Agent{}, err
	}
	r.logger.Info("registered with marketplace", zap.String("wallet", agent.ID), zap.Int("totalJobs", agent.TotalJobs))
	return agent, nil
}

// Run registers immediately and then every interval until ctx is cancelled,
// after which the agent is marked offline.
func (r *Registrar) Run(ctx context.Context) {
	if _, err := r.RegisterOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("registration pending", zap.Error(err))
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.RegisterOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("registration refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			r.markOffline()
			return
		}
	}
}

func (r *Registrar) markOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := r.registry.SetStatus(ctx, r.profile.Wallet, ledger.AgentOffline); err != nil {
		r.logger.Warn("mark offline", zap.Error(err))
	}
}

func transient(err error) bool {
	return errors.Is(err, ledger.ErrUpstreamUnavailable)
}
