package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/skills"
)

// Task is a marketplace job handed to this agent for execution.
type Task struct {
	JobID     string         `json:"jobId"`
	Skill     string         `json:"skill"`
	Request   skills.Request `json:"request"`
	Submitted time.Time      `json:"submitted"`
}

// TaskResult records how a Task was resolved.
type TaskResult struct {
	Task        Task             `json:"task"`
	Status      ledger.JobStatus `json:"status"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	Reported    bool             `json:"reported"`
	ProcessedAt time.Time        `json:"processedAt"`
}

// Reporter resolves jobs on the marketplace; satisfied by *marketclient.Client.
type Reporter interface {
	CompleteJob(ctx context.Context, jobID string, result any) (ledger.CompletionResult, error)
	FailJob(ctx context.Context, jobID, reason string) (ledger.Job, error)
}

// Registry is the marketplace surface used for registration and peer
// discovery; satisfied by *marketclient.Client.
type Registry interface {
	Register(ctx context.Context, req ledger.RegisterRequest) (ledger.Agent, error)
	SetStatus(ctx context.Context, id string, status ledger.AgentStatus) (ledger.Agent, error)
	Agents(ctx context.Context) ([]ledger.Agent, error)
}
