package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/skills"
)

type recordingReporter struct {
	mu        sync.Mutex
	completed map[string]json.RawMessage
	failed    map[string]string
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{completed: map[string]json.RawMessage{}, failed: map[string]string{}}
}

func (r *recordingReporter) CompleteJob(_ context.Context, jobID string, result any) (ledger.CompletionResult, error) {
	raw, _ := json.Marshal(result)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[jobID] = raw
	return ledger.CompletionResult{}, nil
}

func (r *recordingReporter) FailJob(_ context.Context, jobID, reason string) (ledger.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[jobID] = reason
	return ledger.Job{}, nil
}

func TestWorkerPoolReportsOutcomes(t *testing.T) {
	reporter := newRecordingReporter()
	catalogue, err := skills.Builtin(nil).Select(skills.NameSentiment)
	require.NoError(t, err)
	pool := NewWorkerPool(1, 4, catalogue, reporter, zaptest.NewLogger(t))
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.Enqueue(Task{JobID: "job-1", Skill: skills.NameSentiment, Request: skills.Request{Text: "great work"}}))
	require.NoError(t, pool.Enqueue(Task{JobID: "job-2", Skill: skills.NameSentiment}))

	seen := map[string]TaskResult{}
	for len(seen) < 2 {
		select {
		case res := <-pool.Results():
			seen[res.Task.JobID] = res
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for results")
		}
	}

	require.Equal(t, ledger.JobCompleted, seen["job-1"].Status)
	require.True(t, seen["job-1"].Reported)
	require.Equal(t, ledger.JobFailed, seen["job-2"].Status)
	require.Contains(t, seen["job-2"].Error, "text required")

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	require.Contains(t, string(reporter.completed["job-1"]), `"sentiment":"positive"`)
	require.Contains(t, reporter.failed["job-2"], "text required")
}

func TestWorkerPoolQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, skills.Builtin(nil), newRecordingReporter(), zaptest.NewLogger(t))

	require.NoError(t, pool.Enqueue(Task{JobID: "job-1", Skill: skills.NameSearch}))
	require.ErrorIs(t, pool.Enqueue(Task{JobID: "job-2", Skill: skills.NameSearch}), ErrQueueFull)

	pool.Start()
	pool.Stop()
}

func TestHistoryIsBounded(t *testing.T) {
	h := NewHistory(2)
	for _, id := range []string{"a", "b", "c"} {
		h.Add(TaskResult{Task: Task{JobID: id}})
	}
	recent := h.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "b", recent[0].Task.JobID)
	require.Equal(t, "c", recent[1].Task.JobID)
}

type deadlineReporter struct {
	*recordingReporter
	ctxErrs chan error
}

func (r *deadlineReporter) FailJob(ctx context.Context, jobID, reason string) (ledger.Job, error) {
	r.ctxErrs <- ctx.Err()
	if err := ctx.Err(); err != nil {
		return ledger.Job{}, err
	}
	return r.recordingReporter.FailJob(ctx, jobID, reason)
}

func TestWorkerPoolReportsSkillTimeoutOnFreshDeadline(t *testing.T) {
	catalogue := skills.Catalogue{}
	catalogue.Add(skills.Skill{
		Name:  "stall",
		Price: ledger.MustAmount("0.01"),
		Run: func(ctx context.Context, _ skills.Request) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	reporter := &deadlineReporter{recordingReporter: newRecordingReporter(), ctxErrs: make(chan error, 1)}
	pool := NewWorkerPool(1, 1, catalogue, reporter, zaptest.NewLogger(t))
	pool.timeout = 50 * time.Millisecond
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.Enqueue(Task{JobID: "job-slow", Skill: "stall"}))

	select {
	case res := <-pool.Results():
		require.Equal(t, ledger.JobFailed, res.Status)
		require.True(t, res.Reported)
		require.Contains(t, res.Error, "deadline exceeded")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	require.NoError(t, <-reporter.ctxErrs)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	require.Contains(t, reporter.failed["job-slow"], "deadline exceeded")
}
