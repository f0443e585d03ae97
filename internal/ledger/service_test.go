package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/broadcast"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingLedger struct {
	*MemoryLedger
}

func (failingLedger) Append(context.Context, Transaction) (Transaction, error) {
	return Transaction{}, errors.New("disk full")
}

type ServiceSuite struct {
	suite.Suite

	ctx      context.Context
	clock    *fakeClock
	hub      *broadcast.Hub
	observer *broadcast.MemoryObserver
	agents   *MemoryAgentStore
	jobs     *MemoryJobStore
	ledger   *MemoryLedger
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.hub = broadcast.NewHub(16, zaptest.NewLogger(s.T()))
	s.observer = broadcast.NewMemoryObserver("test")
	s.hub.Subscribe(s.observer)
	s.agents = NewMemoryAgentStore()
	s.jobs = NewMemoryJobStore()
	s.ledger = NewMemoryLedger()
	s.svc = s.newService(s.ledger, Config{JobTTL: time.Hour})
}

func (s *ServiceSuite) TearDownTest() {
	s.hub.Close()
}

func (s *ServiceSuite) newService(ledger TransactionLedger, cfg Config) *Service {
	return NewService(Deps{
		Agents:    s.agents,
		Jobs:      s.jobs,
		Ledger:    ledger,
		Publisher: s.hub,
		Clock:     s.clock,
		Logger:    zaptest.NewLogger(s.T()),
	}, cfg)
}

func (s *ServiceSuite) register(wallet, price string) Agent {
	agent, err := s.svc.RegisterAgent(s.ctx, RegisterRequest{
		Name:        "agent " + wallet,
		Description: "test agent",
		Endpoint:    "http://localhost:4001",
		Wallet:      wallet,
		Price:       price,
		Category:    "research",
	})
	s.Require().NoError(err)
	return agent
}

func (s *ServiceSuite) createJob(client, provider, price string) Job {
	job, err := s.svc.CreateJob(s.ctx, CreateJobRequest{
		ClientAgent:   client,
		ProviderAgent: provider,
		Service:       "scrape",
		Price:         price,
	})
	s.Require().NoError(err)
	return job
}

func (s *ServiceSuite) TestRegisterAppliesDefaults() {
	agent := s.register("0xAAA", "0.02")
	s.Equal("0xAAA", agent.ID)
	s.Equal(0, agent.TotalJobs)
	s.Equal("0.00", agent.Earnings.String())
	s.Equal(DefaultRating, agent.Rating)
	s.Equal(AgentOnline, agent.Status)
	s.Equal([]string{EventAgentRegistered}, s.observer.Types())
}

func (s *ServiceSuite) TestRegisterValidatesFields() {
	_, err := s.svc.RegisterAgent(s.ctx, RegisterRequest{Name: "x", Wallet: "0x1"})
	s.ErrorIs(err, ErrInvalidInput)
	s.Contains(err.Error(), "description")

	_, err = s.svc.RegisterAgent(s.ctx, RegisterRequest{
		Name: "x", Description: "d", Endpoint: "e", Wallet: "0x1", Price: "0.01", Category: "trading",
	})
	s.ErrorIs(err, ErrInvalidInput)

	_, err = s.svc.RegisterAgent(s.ctx, RegisterRequest{
		Name: "x", Description: "d", Endpoint: "e", Wallet: "0x1", Price: "free", Category: "research",
	})
	s.ErrorIs(err, ErrInvalidInput)
	s.Empty(s.observer.Types())
}

func (s *ServiceSuite) TestReRegistrationPreservesCounters() {
	s.register("0xBBB", "0.03")
	job := s.createJob("0xAAA", "0xBBB", "0.03")
	_, err := s.svc.CompleteJob(s.ctx, job.ID, nil)
	s.Require().NoError(err)

	again := s.register("0xBBB", "0.04")
	s.Equal(1, again.TotalJobs)
	s.Equal("0.03", again.Earnings.String())
	s.Equal("0.04", again.Price.String())

	agents, err := s.svc.Agents(s.ctx)
	s.Require().NoError(err)
	s.Len(agents, 1)
}

func (s *ServiceSuite) TestCreateJobValidates() {
	_, err := s.svc.CreateJob(s.ctx, CreateJobRequest{ProviderAgent: "0xB", Service: "s", Price: "1"})
	s.ErrorIs(err, ErrInvalidInput)
	_, err = s.svc.CreateJob(s.ctx, CreateJobRequest{ClientAgent: "0xA", ProviderAgent: "0xB", Price: "1"})
	s.ErrorIs(err, ErrInvalidInput)
	_, err = s.svc.CreateJob(s.ctx, CreateJobRequest{ClientAgent: "0xA", ProviderAgent: "0xB", Service: "s", Price: "-1"})
	s.ErrorIs(err, ErrInvalidInput)

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.ActiveJobs)
}

func (s *ServiceSuite) TestCompletionScenario() {
	s.register("0xAAA", "0.02")
	s.register("0xCCC", "0.05")

	job := s.createJob("0xCCC", "0xAAA", "0.02")
	s.Equal(JobPending, job.Status)
	s.Equal(s.clock.Now().UnixMilli(), job.Timestamp)

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.ActiveJobs)

	s.clock.Advance(2 * time.Second)
	res, err := s.svc.CompleteJob(s.ctx, job.ID, json.RawMessage(`{"title":"Example"}`))
	s.Require().NoError(err)
	s.Equal(JobCompleted, res.Job.Status)
	s.JSONEq(`{"title":"Example"}`, string(res.Job.Result))
	s.Equal("0xCCC", res.Transaction.From)
	s.Equal("0xAAA", res.Transaction.To)
	s.Equal("0.02", res.Transaction.Amount.String())
	s.Equal("scrape", res.Transaction.Service)
	s.Equal(s.clock.Now().UnixMilli(), res.Transaction.Timestamp)

	provider, err := s.svc.Agent(s.ctx, "0xAAA")
	s.Require().NoError(err)
	s.Equal(1, provider.TotalJobs)
	s.Equal("0.02", provider.Earnings.String())

	client, err := s.svc.Agent(s.ctx, "0xCCC")
	s.Require().NoError(err)
	s.Equal(0, client.TotalJobs)

	stats, err = s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(Stats{TotalAgents: 2, TotalTransactions: 1, TotalVolume: "0.02", ActiveJobs: 0}, stats)

	s.Equal([]string{
		EventAgentRegistered, EventAgentRegistered, EventJobCreated, EventJobCompleted,
	}, s.observer.Types())
	completed := s.observer.Envelopes()[3]
	s.Contains(completed, "job")
	s.Contains(completed, "transaction")
}

func (s *ServiceSuite) TestDoubleCompletionIsRejected() {
	s.register("0xAAA", "0.02")
	job := s.createJob("0xCCC", "0xAAA", "0.02")
	_, err := s.svc.CompleteJob(s.ctx, job.ID, nil)
	s.Require().NoError(err)

	_, err = s.svc.CompleteJob(s.ctx, job.ID, nil)
	s.ErrorIs(err, ErrAlreadyTerminal)
	_, err = s.svc.FailJob(s.ctx, job.ID, "late")
	s.ErrorIs(err, ErrAlreadyTerminal)

	provider, err := s.svc.Agent(s.ctx, "0xAAA")
	s.Require().NoError(err)
	s.Equal(1, provider.TotalJobs)
	txs, err := s.svc.RecentTransactions(s.ctx)
	s.Require().NoError(err)
	s.Len(txs, 1)
}

func (s *ServiceSuite) TestCompletingUnknownJobHasNoEffect() {
	s.register("0xAAA", "0.02")
	_, err := s.svc.CompleteJob(s.ctx, "job-missing", nil)
	s.ErrorIs(err, ErrNotFound)

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.TotalTransactions)
	s.Equal([]string{EventAgentRegistered}, s.observer.Types())
}

func (s *ServiceSuite) TestCompletionWithUnknownProviderStillRecordsPayment() {
	job := s.createJob("0xCCC", "0xGHOST", "0.10")
	res, err := s.svc.CompleteJob(s.ctx, job.ID, nil)
	s.Require().NoError(err)
	s.Equal("0xGHOST", res.Transaction.To)

	_, err = s.svc.Agent(s.ctx, "0xGHOST")
	s.ErrorIs(err, ErrNotFound)
	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal("0.10", stats.TotalVolume)
}

func (s *ServiceSuite) TestCompletionRollsBackWhenLedgerFails() {
	svc := s.newService(failingLedger{NewMemoryLedger()}, Config{})
	s.svc = svc
	s.register("0xAAA", "0.02")
	job := s.createJob("0xCCC", "0xAAA", "0.02")

	_, err := svc.CompleteJob(s.ctx, job.ID, nil)
	s.Require().Error(err)

	stored, err := svc.Job(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(JobPending, stored.Status)
	provider, err := svc.Agent(s.ctx, "0xAAA")
	s.Require().NoError(err)
	s.Equal(0, provider.TotalJobs)
	s.Equal("0.00", provider.Earnings.String())
	s.NotContains(s.observer.Types(), EventJobCompleted)
}

func (s *ServiceSuite) TestFailJob() {
	job := s.createJob("0xCCC", "0xAAA", "0.02")
	failed, err := s.svc.FailJob(s.ctx, job.ID, "upstream timeout")
	s.Require().NoError(err)
	s.Equal(JobFailed, failed.Status)
	s.Equal("upstream timeout", failed.FailureReason)

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.ActiveJobs)
	s.Zero(stats.TotalTransactions)
	s.Equal(EventJobFailed, s.observer.Types()[1])
}

func (s *ServiceSuite) TestRawTransactionToUnknownReceiver() {
	s.register("0xAAA", "0.02")
	tx, err := s.svc.RecordTransaction(s.ctx, TransactionRequest{
		From: "0xCCC", To: "0xNOBODY", Amount: "0.03", Service: "sentiment", Timestamp: 1_700_000_000_000,
	})
	s.Require().NoError(err)
	s.NotEmpty(tx.ID)

	agents, err := s.svc.Agents(s.ctx)
	s.Require().NoError(err)
	for _, a := range agents {
		s.Equal(0, a.TotalJobs)
	}
	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalTransactions)
	s.Equal(EventTransaction, s.observer.Types()[1])
}

func (s *ServiceSuite) TestRawTransactionCreditsKnownReceiver() {
	s.register("0xBBB", "0.03")
	_, err := s.svc.RecordTransaction(s.ctx, TransactionRequest{
		ID: "tx-demo-1", From: "0xCCC", To: "0xBBB", Amount: "0.03", Service: "sentiment", Timestamp: 1,
	})
	s.Require().NoError(err)

	agent, err := s.svc.Agent(s.ctx, "0xBBB")
	s.Require().NoError(err)
	s.Equal(1, agent.TotalJobs)
	s.Equal("0.03", agent.Earnings.String())
}

func (s *ServiceSuite) TestRawTransactionValidation() {
	_, err := s.svc.RecordTransaction(s.ctx, TransactionRequest{From: "a", To: "b", Amount: "x", Service: "s", Timestamp: 1})
	s.ErrorIs(err, ErrInvalidTransaction)
	_, err = s.svc.RecordTransaction(s.ctx, TransactionRequest{From: "a", To: "b", Amount: "1", Service: "s"})
	s.ErrorIs(err, ErrInvalidTransaction)
	_, err = s.svc.RecordTransaction(s.ctx, TransactionRequest{To: "b", Amount: "1", Service: "s", Timestamp: 1})
	s.ErrorIs(err, ErrInvalidTransaction)
	s.Empty(s.observer.Types())
}

func (s *ServiceSuite) TestAggregateMatchesLedger() {
	s.register("0xAAA", "0.02")
	amounts := []string{"0.02", "0.03", "0.05", "0.1", "1.234"}
	for _, amount := range amounts {
		_, err := s.svc.RecordTransaction(s.ctx, TransactionRequest{
			From: "0xC", To: "0xAAA", Amount: amount, Service: "s", Timestamp: 1,
		})
		s.Require().NoError(err)
	}

	txs, err := s.svc.RecentTransactions(s.ctx)
	s.Require().NoError(err)
	sum := ZeroAmount
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(len(txs), stats.TotalTransactions)
	s.Equal(sum.Display(), stats.TotalVolume)
	s.Equal("1.43", stats.TotalVolume)
}

func (s *ServiceSuite) TestRecentWindowKeepsNewestLast() {
	svc := s.newService(s.ledger, Config{RecentWindow: 3})
	for i := 1; i <= 5; i++ {
		_, err := svc.RecordTransaction(s.ctx, TransactionRequest{
			From: "0xC", To: "0xD", Amount: "1", Service: "s", Timestamp: int64(i),
		})
		s.Require().NoError(err)
	}
	txs, err := svc.RecentTransactions(s.ctx)
	s.Require().NoError(err)
	s.Len(txs, 3)
	s.Equal(int64(3), txs[0].Timestamp)
	s.Equal(int64(5), txs[2].Timestamp)

	stats, err := svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, stats.TotalTransactions)
}

func (s *ServiceSuite) TestConcurrentCompletionsSumExactly() {
	s.register("0xAAA", "0.01")
	const n = 50
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, s.createJob("0xCCC", "0xAAA", "0.01").ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for _, id := range ids {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := s.svc.CompleteJob(s.ctx, id, nil); err != nil {
					errs <- err
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)

	rejected := 0
	for err := range errs {
		s.ErrorIs(err, ErrAlreadyTerminal)
		rejected++
	}
	s.Equal(n, rejected)

	provider, err := s.svc.Agent(s.ctx, "0xAAA")
	s.Require().NoError(err)
	s.Equal(n, provider.TotalJobs)
	s.Equal("0.50", provider.Earnings.String())

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(n, stats.TotalTransactions)
	s.Equal("0.50", stats.TotalVolume)
	s.Zero(stats.ActiveJobs)
}

func (s *ServiceSuite) TestReadersNeverObservePartialCompletion() {
	s.register("0xAAA", "0.01")
	const n = 40
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, s.createJob("0xCCC", "0xAAA", "0.01").ID)
	}

	done := make(chan struct{})
	violations := make(chan string, 64)
	report := func(msg string) {
		select {
		case violations <- msg:
		default:
		}
	}
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			stats, err := s.svc.Stats(s.ctx)
			if err != nil {
				report(err.Error())
				continue
			}
			if stats.TotalTransactions+stats.ActiveJobs != n {
				report(fmt.Sprintf("stats: %d transactions + %d active != %d", stats.TotalTransactions, stats.ActiveJobs, n))
			}
			provider, err := s.svc.Agent(s.ctx, "0xAAA")
			if err != nil {
				report(err.Error())
				continue
			}
			want := MustAmount("0.01").Decimal().Mul(decimal.NewFromInt(int64(provider.TotalJobs)))
			if !provider.Earnings.Decimal().Equal(want) {
				report(fmt.Sprintf("agent: %d jobs but earnings %s", provider.TotalJobs, provider.Earnings))
			}
			jobs, err := s.svc.Jobs(s.ctx)
			if err != nil {
				report(err.Error())
				continue
			}
			for _, job := range jobs {
				if (job.Status == JobCompleted) != (job.Result != nil) {
					report(fmt.Sprintf("job %s: status %s with result %q", job.ID, job.Status, job.Result))
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.svc.CompleteJob(s.ctx, id, json.RawMessage(`{"ok":true}`))
			if err != nil {
				report(err.Error())
			}
		}(id)
	}
	wg.Wait()
	close(done)
	readers.Wait()
	close(violations)

	var seen []string
	for v := range violations {
		seen = append(seen, v)
	}
	s.Empty(seen)

	stats, err := s.svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(n, stats.TotalTransactions)
	s.Zero(stats.ActiveJobs)
}

func (s *ServiceSuite) TestDuplicateTransactionIDIsRejected() {
	s.register("0xAAA", "0.02")
	req := TransactionRequest{
		ID: "tx-1", From: "0xCCC", To: "0xAAA", Amount: "0.02", Service: "scrape", Timestamp: 1_700_000_000_000,
	}
	_, err := s.svc.RecordTransaction(s.ctx, req)
	s.Require().NoError(err)

	_, err = s.svc.RecordTransaction(s.ctx, req)
	s.ErrorIs(err, ErrInvalidTransaction)
	s.Equal(uint32(6), ErrorCode(err))

	agent, err := s.svc.Agent(s.ctx, "0xAAA")
	s.Require().NoError(err)
	s.Equal(1, agent.TotalJobs)
	s.Equal("0.02", agent.Earnings.String())

	txs, err := s.svc.RecentTransactions(s.ctx)
	s.Require().NoError(err)
	s.Len(txs, 1)
	s.Equal([]string{EventAgentRegistered, EventTransaction}, s.observer.Types())
}

func (s *ServiceSuite) TestNullResultIsStoredAsEmptyObject() {
	s.register("0xAAA", "0.02")
	job := s.createJob("0xCCC", "0xAAA", "0.02")

	res, err := s.svc.CompleteJob(s.ctx, job.ID, json.RawMessage(" null "))
	s.Require().NoError(err)
	s.JSONEq(`{}`, string(res.Job.Result))

	stored, err := s.svc.Job(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(JobCompleted, stored.Status)
	s.JSONEq(`{}`, string(stored.Result))
}

func (s *ServiceSuite) TestBadAmountKeepsBothClassifications() {
	_, err := s.svc.RecordTransaction(s.ctx, TransactionRequest{From: "a", To: "b", Amount: "-1", Service: "s", Timestamp: 1})
	s.ErrorIs(err, ErrInvalidTransaction)
	s.ErrorIs(err, ErrInvalidInput)
	s.Equal(uint32(6), ErrorCode(err))
}

func (s *ServiceSuite) TestExpireStaleJobs() {
	old := s.createJob("0xCCC", "0xAAA", "0.02")
	s.clock.Advance(30 * time.Minute)
	fresh := s.createJob("0xCCC", "0xAAA", "0.02")
	s.clock.Advance(31 * time.Minute)

	expired, err := s.svc.ExpireStaleJobs(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(old.ID, expired[0].ID)
	s.Equal("expired", expired[0].FailureReason)

	stored, err := s.svc.Job(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(JobPending, stored.Status)
	s.Equal(EventJobFailed, s.observer.Types()[2])
}

func (s *ServiceSuite) TestExpiryDisabledByDefault() {
	svc := s.newService(s.ledger, Config{})
	s.createJob("0xCCC", "0xAAA", "0.02")
	s.clock.Advance(24 * time.Hour)

	expired, err := svc.ExpireStaleJobs(s.ctx)
	s.Require().NoError(err)
	s.Empty(expired)
}

func (s *ServiceSuite) TestSetAgentStatus() {
	s.register("0xAAA", "0.02")
	agent, err := s.svc.SetAgentStatus(s.ctx, "0xAAA", "busy")
	s.Require().NoError(err)
	s.Equal(AgentBusy, agent.Status)

	_, err = s.svc.SetAgentStatus(s.ctx, "0xAAA", "sleeping")
	s.ErrorIs(err, ErrInvalidInput)
	_, err = s.svc.SetAgentStatus(s.ctx, "0xZZZ", "offline")
	s.ErrorIs(err, ErrNotFound)
	s.Equal([]string{EventAgentRegistered, EventAgentStatus}, s.observer.Types())
}
