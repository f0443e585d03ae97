package ledger

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
)

// MemoryAgentStore is an in-memory AgentStore preserving insertion order.
type MemoryAgentStore struct {
	mu    sync.RWMutex
	byID  map[string]Agent
	order []string
}

// NewMemoryAgentStore constructs an empty store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{byID: make(map[string]Agent)}
}

// Upsert inserts a new agent or overwrites the descriptive fields of an
// existing one. Rating, job count and earnings of an existing record are kept.
func (m *MemoryAgentStore) Upsert(_ context.Context, agent Agent) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[agent.ID]
	if !ok {
		if !agent.Earnings.Valid() {
			agent.Earnings = ZeroAmount
		}
		m.byID[agent.ID] = agent
		m.order = append(m.order, agent.ID)
		return agent, nil
	}
	existing.Name = agent.Name
	existing.Description = agent.Description
	existing.Endpoint = agent.Endpoint
	existing.Wallet = agent.Wallet
	existing.Price = agent.Price
	existing.Category = agent.Category
	existing.Status = agent.Status
	m.byID[agent.ID] = existing
	return existing, nil
}

// Get returns the agent with the given id.
func (m *MemoryAgentStore) Get(_ context.Context, id string) (Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.byID[id]
	if !ok {
		return Agent{}, errorsmod.Wrapf(ErrNotFound, "agent %s", id)
	}
	return agent, nil
}

// List returns all agents in registration order.
func (m *MemoryAgentStore) List(_ context.Context) ([]Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Agent, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}

// Count returns the number of registered agents.
func (m *MemoryAgentStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

// IncrementEarnings adds one completed job and amount to the agent's totals.
func (m *MemoryAgentStore) IncrementEarnings(_ context.Context, id string, amount Amount) (Agent, error) {
	if !amount.Valid() {
		return Agent{}, errorsmod.Wrap(ErrInvalidInput, "amount required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.byID[id]
	if !ok {
		return Agent{}, errorsmod.Wrapf(ErrNotFound, "agent %s", id)
	}
	agent.TotalJobs++
	agent.Earnings = agent.Earnings.Add(amount)
	m.byID[id] = agent
	return agent, nil
}

// SetStatus updates the liveness status of an agent.
func (m *MemoryAgentStore) SetStatus(_ context.Context, id string, status AgentStatus) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.byID[id]
	if !ok {
		return Agent{}, errorsmod.Wrapf(ErrNotFound, "agent %s", id)
	}
	agent.Status = status
	m.byID[id] = agent
	return agent, nil
}

// Restore reinstates a previously read snapshot of an agent.
func (m *MemoryAgentStore) Restore(_ context.Context, agent Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[agent.ID]; !ok {
		return errorsmod.Wrapf(ErrNotFound, "agent %s", agent.ID)
	}
	m.byID[agent.ID] = agent
	return nil
}

// MemoryJobStore is an in-memory JobStore preserving insertion order.
type MemoryJobStore struct {
	mu    sync.RWMutex
	byID  map[string]Job
	order []string
}

// NewMemoryJobStore constructs an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{byID: make(map[string]Job)}
}

// Create inserts a new job record.
func (m *MemoryJobStore) Create(_ context.Context, job Job) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[job.ID]; exists {
		return Job{}, errorsmod.Wrapf(ErrInvalidInput, "job %s already exists", job.ID)
	}
	stored := cloneJob(job)
	m.byID[job.ID] = stored
	m.order = append(m.order, job.ID)
	return cloneJob(stored), nil
}

// Get returns the job with the given id.
func (m *MemoryJobStore) Get(_ context.Context, id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.byID[id]
	if !ok {
		return Job{}, errorsmod.Wrapf(ErrNotFound, "job %s", id)
	}
	return cloneJob(job), nil
}

// Resolve applies an outcome to a pending job.
func (m *MemoryJobStore) Resolve(_ context.Context, id string, outcome Outcome, at time.Time) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.byID[id]
	if !ok {
		return Job{}, errorsmod.Wrapf(ErrNotFound, "job %s", id)
	}
	if job.Status != JobPending {
		return Job{}, errorsmod.Wrapf(ErrAlreadyTerminal, "job %s is %s", id, job.Status)
	}
	outcome.apply(&job)
	job.ResolvedAt = at.UnixMilli()
	m.byID[id] = job
	return cloneJob(job), nil
}

// List returns all jobs in creation order.
func (m *MemoryJobStore) List(_ context.Context) ([]Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneJob(m.byID[id]))
	}
	return out, nil
}

// CountPending returns the number of jobs still awaiting resolution.
func (m *MemoryJobStore) CountPending(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending := 0
	for _, job := range m.byID {
		if job.Status == JobPending {
			pending++
		}
	}
	return pending, nil
}

// Restore reinstates a previously read snapshot of a job.
func (m *MemoryJobStore) Restore(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[job.ID]; !ok {
		return errorsmod.Wrapf(ErrNotFound, "job %s", job.ID)
	}
	m.byID[job.ID] = cloneJob(job)
	return nil
}

// MemoryLedger is an append-only in-memory transaction log.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Transaction
	ids     map[string]struct{}
	sum     Amount
}

// NewMemoryLedger constructs an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ids: make(map[string]struct{}), sum: ZeroAmount}
}

// Append validates and appends a transaction to the end of the log.
// Transaction ids are unique.
func (m *MemoryLedger) Append(_ context.Context, tx Transaction) (Transaction, error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	if tx.ID == "" {
		return Transaction{}, errorsmod.Wrap(ErrInvalidTransaction, "id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[tx.ID]; ok {
		return Transaction{}, errorsmod.Wrapf(ErrInvalidTransaction, "duplicate transaction id %s", tx.ID)
	}
	m.ids[tx.ID] = struct{}{}
	m.entries = append(m.entries, tx)
	m.sum = m.sum.Add(tx.Amount)
	return tx, nil
}

// Has reports whether a transaction with id has been appended.
func (m *MemoryLedger) Has(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ids[id]
	return ok, nil
}

// Recent returns the last n entries, oldest first. n <= 0 returns the full log.
func (m *MemoryLedger) Recent(_ context.Context, n int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if n > 0 && len(m.entries) > n {
		start = len(m.entries) - n
	}
	out := make([]Transaction, len(m.entries)-start)
	copy(out, m.entries[start:])
	return out, nil
}

// Aggregate returns the entry count and the exact sum of amounts.
func (m *MemoryLedger) Aggregate(_ context.Context) (Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Aggregate{Count: len(m.entries), Sum: m.sum}, nil
}
