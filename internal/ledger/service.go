package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/broadcast"
)

// AgentStore encapsulates persistence for agent records.
type AgentStore interface {
	Upsert(ctx context.Context, agent Agent) (Agent, error)
	Get(ctx context.Context, id string) (Agent, error)
	List(ctx context.Context) ([]Agent, error)
	Count(ctx context.Context) (int, error)
	IncrementEarnings(ctx context.Context, id string, amount Amount) (Agent, error)
	SetStatus(ctx context.Context, id string, status AgentStatus) (Agent, error)
	Restore(ctx context.Context, agent Agent) error
}

// JobStore encapsulates persistence for jobs.
type JobStore interface {
	Create(ctx context.Context, job Job) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	Resolve(ctx context.Context, id string, outcome Outcome, at time.Time) (Job, error)
	List(ctx context.Context) ([]Job, error)
	CountPending(ctx context.Context) (int, error)
	Restore(ctx context.Context, job Job) error
}

// TransactionLedger is the append-only payment log.
type TransactionLedger interface {
	Append(ctx context.Context, tx Transaction) (Transaction, error)
	Has(ctx context.Context, id string) (bool, error)
	Recent(ctx context.Context, n int) ([]Transaction, error)
	Aggregate(ctx context.Context) (Aggregate, error)
}

// Publisher fans state changes out to observers.
type Publisher interface {
	Publish(event broadcast.Event) int
}

// Recorder receives counters and samples; satisfied by *metrics.Metrics.
type Recorder interface {
	IncrCounter(key []string, val float32)
	AddSample(key []string, val float32)
}

// Clock provides time keeping; overridable for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type nopPublisher struct{}

func (nopPublisher) Publish(broadcast.Event) int { return 0 }

type nopRecorder struct{}

func (nopRecorder) IncrCounter([]string, float32) {}
func (nopRecorder) AddSample([]string, float32)   {}

// DefaultRecentWindow is the number of transactions returned by RecentTransactions.
const DefaultRecentWindow = 100

// Deps are the collaborators of a Service. Nil fields fall back to in-memory
// stores, a no-op publisher/recorder, the system clock and a no-op logger.
type Deps struct {
	Agents    AgentStore
	Jobs      JobStore
	Ledger    TransactionLedger
	Publisher Publisher
	Metrics   Recorder
	Clock     Clock
	Logger    *zap.Logger
}

// Config tunes service behaviour.
type Config struct {
	// RecentWindow bounds RecentTransactions. Zero means DefaultRecentWindow.
	RecentWindow int
	// JobTTL fails pending jobs older than this. Zero disables expiry.
	JobTTL time.Duration
}

// Service is the registry/ledger API. Mutations run one at a time under a
// single write lock; snapshot queries share the read side.
type Service struct {
	mu sync.RWMutex

	agents    AgentStore
	jobs      JobStore
	ledger    TransactionLedger
	publisher Publisher
	metrics   Recorder
	clock     Clock
	logger    *zap.Logger
	cfg       Config
}

// NewService constructs a Service instance.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Agents == nil {
		deps.Agents = NewMemoryAgentStore()
	}
	if deps.Jobs == nil {
		deps.Jobs = NewMemoryJobStore()
	}
	if deps.Ledger == nil {
		deps.Ledger = NewMemoryLedger()
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	return &Service{
		agents:    deps.Agents,
		jobs:      deps.Jobs,
		ledger:    deps.Ledger,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		logger:    deps.Logger,
		cfg:       cfg,
	}
}

// RegisterAgent creates or refreshes the agent identified by req.Wallet.
func (s *Service) RegisterAgent(ctx context.Context, req RegisterRequest) (Agent, error) {
	agent, err := agentFromRequest(req)
	if err != nil {
		return Agent{}, err
	}

	s.mu.Lock()
	stored, err := s.agents.Upsert(ctx, agent)
	s.mu.Unlock()
	if err != nil {
		return Agent{}, err
	}

	s.metrics.IncrCounter([]string{"agents", "registered"}, 1)
	s.logger.Info("agent registered",
		zap.String("agent", stored.ID), zap.String("name", stored.Name), zap.String("category", string(stored.Category)))
	s.publisher.Publish(broadcast.NewEvent(EventAgentRegistered, "agent", stored))
	return stored, nil
}

// SetAgentStatus updates the liveness of a registered agent.
func (s *Service) SetAgentStatus(ctx context.Context, id, status string) (Agent, error) {
	if strings.TrimSpace(id) == "" {
		return Agent{}, errorsmod.Wrap(ErrInvalidInput, "agent id required")
	}
	parsed, err := ParseAgentStatus(status)
	if err != nil {
		return Agent{}, err
	}

	s.mu.Lock()
	agent, err := s.agents.SetStatus(ctx, id, parsed)
	s.mu.Unlock()
	if err != nil {
		return Agent{}, err
	}

	s.publisher.Publish(broadcast.NewEvent(EventAgentStatus, "agent", agent))
	return agent, nil
}

// CreateJob records a pending unit of work between two agents.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (Job, error) {
	client := strings.TrimSpace(req.ClientAgent)
	provider := strings.TrimSpace(req.ProviderAgent)
	if client == "" || provider == "" {
		return Job{}, errorsmod.Wrap(ErrInvalidInput, "clientAgent and providerAgent required")
	}
	if strings.TrimSpace(req.Service) == "" {
		return Job{}, errorsmod.Wrap(ErrInvalidInput, "service required")
	}
	price, err := ParseAmount(req.Price)
	if err != nil {
		return Job{}, errorsmod.Wrap(err, "price")
	}
	job := Job{
		ID:            "job-" + uuid.NewString(),
		ClientAgent:   client,
		ProviderAgent: provider,
		Service:       strings.TrimSpace(req.Service),
		Price:         price,
		Status:        JobPending,
		Timestamp:     s.clock.Now().UnixMilli(),
	}

	s.mu.Lock()
	created, err := s.jobs.Create(ctx, job)
	s.mu.Unlock()
	if err != nil {
		return Job{}, err
	}

	s.metrics.IncrCounter([]string{"jobs", "created"}, 1)
	s.logger.Info("job created",
		zap.String("job", created.ID), zap.String("client", client), zap.String("provider", provider), zap.String("service", created.Service))
	s.publisher.Publish(broadcast.NewEvent(EventJobCreated, "job", created))
	return created, nil
}

// CompleteJob marks a pending job completed, credits the provider and
// appends the derived transaction. The three effects are applied together
// or not at all.
func (s *Service) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) (CompletionResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return CompletionResult{}, errorsmod.Wrap(ErrInvalidInput, "jobId required")
	}
	if len(result) > 0 && !json.Valid(result) {
		return CompletionResult{}, errorsmod.Wrap(ErrInvalidInput, "result must be valid json")
	}

	s.mu.Lock()
	res, err := s.completeLocked(ctx, jobID, result)
	s.mu.Unlock()
	if err != nil {
		return CompletionResult{}, err
	}

	s.metrics.IncrCounter([]string{"jobs", "completed"}, 1)
	s.metrics.AddSample([]string{"transactions", "amount"}, res.Transaction.Amount.Float32())
	s.logger.Info("job completed",
		zap.String("job", res.Job.ID), zap.String("provider", res.Job.ProviderAgent), zap.Stringer("amount", res.Transaction.Amount))
	s.publisher.Publish(broadcast.NewEvent(EventJobCompleted, "job", res.Job, "transaction", res.Transaction))
	return res, nil
}

func (s *Service) completeLocked(ctx context.Context, jobID string, result json.RawMessage) (CompletionResult, error) {
	before, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return CompletionResult{}, err
	}
	if before.Status.Terminal() {
		return CompletionResult{}, errorsmod.Wrapf(ErrAlreadyTerminal, "job %s is %s", jobID, before.Status)
	}

	now := s.clock.Now()
	tx := Transaction{
		ID:        "tx-" + uuid.NewString(),
		From:      before.ClientAgent,
		To:        before.ProviderAgent,
		Amount:    before.Price,
		Service:   before.Service,
		Timestamp: now.UnixMilli(),
	}
	if err := tx.Validate(); err != nil {
		return CompletionResult{}, err
	}
	provider, known, err := s.lookupAgent(ctx, before.ProviderAgent)
	if err != nil {
		return CompletionResult{}, err
	}

	completed, err := s.jobs.Resolve(ctx, jobID, Completed{Result: result}, now)
	if err != nil {
		return CompletionResult{}, err
	}
	if known {
		if _, err := s.agents.IncrementEarnings(ctx, provider.ID, tx.Amount); err != nil {
			s.restoreJob(ctx, before)
			return CompletionResult{}, errorsmod.Wrapf(err, "credit provider %s", provider.ID)
		}
	} else {
		s.logger.Warn("provider not registered; skipping earnings update",
			zap.String("job", jobID), zap.String("provider", before.ProviderAgent))
	}
	appended, err := s.ledger.Append(ctx, tx)
	if err != nil {
		s.restoreJob(ctx, before)
		if known {
			s.restoreAgent(ctx, provider)
		}
		return CompletionResult{}, errorsmod.Wrap(err, "append transaction")
	}
	return CompletionResult{Job: completed, Transaction: appended}, nil
}

// FailJob marks a pending job failed. No payment is recorded.
func (s *Service) FailJob(ctx context.Context, jobID, reason string) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, errorsmod.Wrap(ErrInvalidInput, "jobId required")
	}

	s.mu.Lock()
	failed, err := s.jobs.Resolve(ctx, jobID, Failed{Reason: reason}, s.clock.Now())
	s.mu.Unlock()
	if err != nil {
		return Job{}, err
	}

	s.metrics.IncrCounter([]string{"jobs", "failed"}, 1)
	s.logger.Info("job failed", zap.String("job", failed.ID), zap.String("reason", failed.FailureReason))
	s.publisher.Publish(broadcast.NewEvent(EventJobFailed, "job", failed))
	return failed, nil
}

// RecordTransaction appends a client-submitted payment and credits the
// receiver when it is a registered agent.
func (s *Service) RecordTransaction(ctx context.Context, req TransactionRequest) (Transaction, error) {
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	tx := Transaction{
		ID:        strings.TrimSpace(req.ID),
		From:      strings.TrimSpace(req.From),
		To:        strings.TrimSpace(req.To),
		Amount:    amount,
		Service:   strings.TrimSpace(req.Service),
		Timestamp: req.Timestamp,
		TxHash:    req.TxHash,
	}
	if tx.ID == "" {
		tx.ID = "tx-" + uuid.NewString()
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	appended, err := s.recordLocked(ctx, tx)
	s.mu.Unlock()
	if err != nil {
		return Transaction{}, err
	}

	s.metrics.IncrCounter([]string{"transactions", "recorded"}, 1)
	s.metrics.AddSample([]string{"transactions", "amount"}, appended.Amount.Float32())
	s.logger.Info("transaction recorded",
		zap.String("from", appended.From), zap.String("to", appended.To), zap.Stringer("amount", appended.Amount))
	s.publisher.Publish(broadcast.NewEvent(EventTransaction, "transaction", appended))
	return appended, nil
}

func (s *Service) recordLocked(ctx context.Context, tx Transaction) (Transaction, error) {
	dup, err := s.ledger.Has(ctx, tx.ID)
	if err != nil {
		return Transaction{}, err
	}
	if dup {
		return Transaction{}, errorsmod.Wrapf(ErrInvalidTransaction, "duplicate transaction id %s", tx.ID)
	}
	receiver, known, err := s.lookupAgent(ctx, tx.To)
	if err != nil {
		return Transaction{}, err
	}
	if known {
		if _, err := s.agents.IncrementEarnings(ctx, receiver.ID, tx.Amount); err != nil {
			return Transaction{}, errorsmod.Wrapf(err, "credit receiver %s", receiver.ID)
		}
	} else {
		s.logger.Warn("receiver not registered; skipping earnings update", zap.String("to", tx.To))
	}
	appended, err := s.ledger.Append(ctx, tx)
	if err != nil {
		if known {
			s.restoreAgent(ctx, receiver)
		}
		return Transaction{}, err
	}
	return appended, nil
}

// ExpireStaleJobs fails every pending job older than the configured TTL.
// It is a no-op when the TTL is zero.
func (s *Service) ExpireStaleJobs(ctx context.Context) ([]Job, error) {
	if s.cfg.JobTTL <= 0 {
		return nil, nil
	}
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.JobTTL)

	s.mu.Lock()
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var expired []Job
	for _, job := range jobs {
		if job.Status != JobPending || job.CreatedAt().After(cutoff) {
			continue
		}
		failed, err := s.jobs.Resolve(ctx, job.ID, Failed{Reason: "expired"}, now)
		if err != nil {
			s.logger.Warn("expire job", zap.String("job", job.ID), zap.Error(err))
			continue
		}
		expired = append(expired, failed)
	}
	s.mu.Unlock()

	for _, job := range expired {
		s.metrics.IncrCounter([]string{"jobs", "expired"}, 1)
		s.logger.Info("job expired", zap.String("job", job.ID), zap.Duration("ttl", s.cfg.JobTTL))
		s.publisher.Publish(broadcast.NewEvent(EventJobFailed, "job", job))
	}
	return expired, nil
}

// RunExpiry calls ExpireStaleJobs every interval until ctx is cancelled.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	if s.cfg.JobTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.ExpireStaleJobs(ctx); err != nil {
				s.logger.Error("job expiry sweep", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Agents lists registered agents in registration order.
func (s *Service) Agents(ctx context.Context) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents.List(ctx)
}

// Agent returns a single agent.
func (s *Service) Agent(ctx context.Context, id string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents.Get(ctx, id)
}

// Jobs lists jobs in creation order.
func (s *Service) Jobs(ctx context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs.List(ctx)
}

// Job returns a single job.
func (s *Service) Job(ctx context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs.Get(ctx, id)
}

// RecentTransactions returns the most recent window of the ledger, oldest
// first (the newest transaction is the last element).
func (s *Service) RecentTransactions(ctx context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Recent(ctx, s.cfg.RecentWindow)
}

// Stats computes the marketplace rollup.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents, err := s.agents.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	agg, err := s.ledger.Aggregate(ctx)
	if err != nil {
		return Stats{}, err
	}
	pending, err := s.jobs.CountPending(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalAgents:       agents,
		TotalTransactions: agg.Count,
		TotalVolume:       agg.Sum.Display(),
		ActiveJobs:        pending,
	}, nil
}

func (s *Service) lookupAgent(ctx context.Context, id string) (Agent, bool, error) {
	agent, err := s.agents.Get(ctx, id)
	switch {
	case err == nil:
		return agent, true, nil
	case errors.Is(err, ErrNotFound):
		return Agent{}, false, nil
	default:
		return Agent{}, false, err
	}
}

func (s *Service) restoreJob(ctx context.Context, job Job) {
	if err := s.jobs.Restore(ctx, job); err != nil {
		s.logger.Error("rollback job", zap.String("job", job.ID), zap.Error(err))
	}
}

func (s *Service) restoreAgent(ctx context.Context, agent Agent) {
	if err := s.agents.Restore(ctx, agent); err != nil {
		s.logger.Error("rollback agent", zap.String("agent", agent.ID), zap.Error(err))
	}
}

func agentFromRequest(req RegisterRequest) (Agent, error) {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"name", req.Name},
		{"description", req.Description},
		{"endpoint", req.Endpoint},
		{"wallet", req.Wallet},
		{"price", req.Price},
		{"category", req.Category},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return Agent{}, errorsmod.Wrapf(ErrInvalidInput, "%s required", strings.Join(missing, ", "))
	}
	category, err := ParseCategory(req.Category)
	if err != nil {
		return Agent{}, err
	}
	price, err := ParseAmount(req.Price)
	if err != nil {
		return Agent{}, errorsmod.Wrap(err, "price")
	}
	wallet := strings.TrimSpace(req.Wallet)
	return Agent{
		ID:          wallet,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Endpoint:    strings.TrimSpace(req.Endpoint),
		Wallet:      wallet,
		Price:       price,
		Category:    category,
		Rating:      DefaultRating,
		TotalJobs:   0,
		Earnings:    ZeroAmount,
		Status:      AgentOnline,
	}, nil
}
