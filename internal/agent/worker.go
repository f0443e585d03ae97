package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/skills"
)

var (
	// ErrQueueFull indicates the task queue is currently saturated.
	ErrQueueFull = errors.New("agent task queue full")
)

const (
	// DefaultTaskTimeout bounds a single skill execution.
	DefaultTaskTimeout = 30 * time.Second
	// DefaultReportTimeout bounds reporting the outcome to the marketplace.
	DefaultReportTimeout = 10 * time.Second
)

// WorkerPool executes marketplace tasks concurrently and reports each
// outcome back to the marketplace.
type WorkerPool struct {
	catalogue     skills.Catalogue
	reporter      Reporter
	tasks         chan Task
	results       chan TaskResult
	workers       int
	timeout       time.Duration
	reportTimeout time.Duration
	logger        *zap.Logger
	startOnce     sync.Once
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewWorkerPool constructs a worker pool.
func NewWorkerPool(workers, queueSize int, catalogue skills.Catalogue, reporter Reporter, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	return &WorkerPool{
		catalogue:     catalogue,
		reporter:      reporter,
		tasks:         make(chan Task, queueSize),
		results:       make(chan TaskResult, queueSize),
		workers:       workers,
		timeout:       DefaultTaskTimeout,
		reportTimeout: DefaultReportTimeout,
		logger:        logger,
	}
}

// Start launches worker goroutines.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.workerLoop()
		}
	})
}

func (p *WorkerPool) workerLoop() {
	defer p.wg.Done()
	for task := range p.tasks {
		result := p.execute(task)
		select {
		case p.results <- result:
		default:
			p.logger.Warn("dropping task result: results channel full", zap.String("job", task.JobID))
		}
	}
}

func (p *WorkerPool) execute(task Task) TaskResult {
	result := TaskResult{Task: task}
	out, err := p.run(task)
	if err == nil {
		result.Result, err = json.Marshal(out)
	}
	if err != nil {
		result.Status = ledger.JobFailed
		result.Error = err.Error()
	} else {
		result.Status = ledger.JobCompleted
	}
	result.Reported = p.report(result)
	result.ProcessedAt = time.Now().UTC()
	p.logger.Info("task processed",
		zap.String("job", task.JobID), zap.String("skill", task.Skill), zap.String("status", string(result.Status)))
	return result
}

func (p *WorkerPool) run(task Task) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.catalogue.Run(ctx, task.Skill, task.Request)
}

// report resolves the marketplace job on its own deadline so a skill that
// used up its budget can still be failed.
func (p *WorkerPool) report(result TaskResult) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.reportTimeout)
	defer cancel()

	var err error
	if result.Status == ledger.JobCompleted {
		_, err = p.reporter.CompleteJob(ctx, result.Task.JobID, result.Result)
	} else {
		_, err = p.reporter.FailJob(ctx, result.Task.JobID, result.Error)
	}
	if err != nil {
		p.logger.Error("report job outcome",
			zap.String("job", result.Task.JobID), zap.String("status", string(result.Status)), zap.Error(err))
		return false
	}
	return true
}

// Stop drains workers and closes the results channel.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
		close(p.results)
	})
}

// Enqueue submits a task for execution.
func (p *WorkerPool) Enqueue(task Task) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Results exposes a read-only channel of task results.
func (p *WorkerPool) Results() <-chan TaskResult {
	return p.results
}
