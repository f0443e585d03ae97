package ledger

import (
	"bytes"
	"encoding/json"
	"time"

	errorsmod "cosmossdk.io/errors"
)

// Category is the fixed set of services an agent may advertise.
type Category string

const (
	CategoryResearch      Category = "research"
	CategoryAnalysis      Category = "analysis"
	CategorySummarization Category = "summarization"
)

// AgentStatus reports agent liveness.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
)

// JobStatus describes the lifecycle of a job. Only pending jobs may change.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// DefaultRating is assigned to newly registered agents.
const DefaultRating = 5.0

// Agent is a registered service provider keyed by wallet address.
type Agent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Endpoint    string      `json:"endpoint"`
	Wallet      string      `json:"wallet"`
	Price       Amount      `json:"price"`
	Category    Category    `json:"category"`
	Rating      float64     `json:"rating"`
	TotalJobs   int         `json:"totalJobs"`
	Earnings    Amount      `json:"earnings"`
	Status      AgentStatus `json:"status"`
}

// Job links a client agent and a provider agent for one unit of work.
type Job struct {
	ID            string          `json:"id"`
	ClientAgent   string          `json:"clientAgent"`
	ProviderAgent string          `json:"providerAgent"`
	Service       string          `json:"service"`
	Price         Amount          `json:"price"`
	Status        JobStatus       `json:"status"`
	Timestamp     int64           `json:"timestamp"`
	ResolvedAt    int64           `json:"resolvedAt,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

// CreatedAt returns the creation time decoded from Timestamp.
func (j Job) CreatedAt() time.Time {
	return time.UnixMilli(j.Timestamp).UTC()
}

// Transaction is an immutable settled-payment record.
type Transaction struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    Amount `json:"amount"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
	TxHash    string `json:"txHash,omitempty"`
}

// Validate checks that every required field is present.
func (t Transaction) Validate() error {
	switch {
	case t.From == "":
		return errorsmod.Wrap(ErrInvalidTransaction, "from required")
	case t.To == "":
		return errorsmod.Wrap(ErrInvalidTransaction, "to required")
	case !t.Amount.Valid():
		return errorsmod.Wrap(ErrInvalidTransaction, "amount required")
	case t.Service == "":
		return errorsmod.Wrap(ErrInvalidTransaction, "service required")
	case t.Timestamp <= 0:
		return errorsmod.Wrap(ErrInvalidTransaction, "timestamp required")
	}
	return nil
}

// Stats is derived on demand from the stores.
type Stats struct {
	TotalAgents       int    `json:"totalAgents"`
	TotalTransactions int    `json:"totalTransactions"`
	TotalVolume       string `json:"totalVolume"`
	ActiveJobs        int    `json:"activeJobs"`
}

// Aggregate is the ledger rollup over the full log.
type Aggregate struct {
	Count int
	Sum   Amount
}

// Outcome is the resolution of a pending job: Completed or Failed.
type Outcome interface {
	status() JobStatus
	apply(job *Job)
}

// Completed resolves a job successfully with a result payload.
type Completed struct {
	Result json.RawMessage
}

func (Completed) status() JobStatus { return JobCompleted }

func (c Completed) apply(job *Job) {
	job.Status = JobCompleted
	job.Result = append(json.RawMessage(nil), bytes.TrimSpace(c.Result)...)
	if len(job.Result) == 0 || bytes.Equal(job.Result, []byte("null")) {
		job.Result = json.RawMessage(`{}`)
	}
	job.FailureReason = ""
}

// Failed resolves a job unsuccessfully with a reason.
type Failed struct {
	Reason string
}

func (Failed) status() JobStatus { return JobFailed }

func (f Failed) apply(job *Job) {
	job.Status = JobFailed
	job.Result = nil
	job.FailureReason = f.Reason
	if job.FailureReason == "" {
		job.FailureReason = "unspecified"
	}
}

// RegisterRequest carries the descriptive fields of an agent.
type RegisterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
	Wallet      string `json:"wallet"`
	Price       string `json:"price"`
	Category    string `json:"category"`
}

// CreateJobRequest describes work requested by a client from a provider.
type CreateJobRequest struct {
	ClientAgent   string `json:"clientAgent"`
	ProviderAgent string `json:"providerAgent"`
	Service       string `json:"service"`
	Price         string `json:"price"`
}

// TransactionRequest is a client-submitted payment record.
type TransactionRequest struct {
	ID        string `json:"id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
	TxHash    string `json:"txHash,omitempty"`
}

// CompletionResult is returned by a successful job completion.
type CompletionResult struct {
	Job         Job         `json:"job"`
	Transaction Transaction `json:"transaction"`
}

// Event types published to observers.
const (
	EventAgentRegistered = "agent_registered"
	EventAgentStatus     = "agent_status"
	EventJobCreated      = "job_created"
	EventJobCompleted    = "job_completed"
	EventJobFailed       = "job_failed"
	EventTransaction     = "transaction"
)

func cloneJob(j Job) Job {
	out := j
	if j.Result != nil {
		out.Result = append(json.RawMessage(nil), j.Result...)
	}
	return out
}
