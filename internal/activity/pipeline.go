package activity

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

// ObserverID is the hub identity of the pipeline.
const ObserverID = "activity"

// Pipeline decodes event envelopes and delivers entries to registered sinks.
// It satisfies broadcast.Observer.
type Pipeline struct {
	logger   *zap.Logger
	now      func() time.Time
	sinks    []Sink
	entries  chan Entry
	mu       sync.RWMutex
	stopped  atomic.Bool
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
}

// NewPipeline creates a pipeline with the given queue size.
func NewPipeline(buffer int, logger *zap.Logger) *Pipeline {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:  logger,
		now:     time.Now,
		entries: make(chan Entry, buffer),
	}
}

// RegisterSink registers a sink. It must be called before Start.
func (p *Pipeline) RegisterSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Start launches the dispatch loop.
func (p *Pipeline) Start() {
	p.once.Do(func() {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for entry := range p.entries {
				for _, sink := range p.sinks {
					if err := sink.Consume(entry); err != nil {
						p.logger.Warn("activity sink error", zap.String("type", entry.Type), zap.Error(err))
					}
				}
			}
		}()
	})
}

// Stop drains queued entries and waits for the dispatch loop.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped.Store(true)
		close(p.entries)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pipeline) ID() string { return ObserverID }

func (p *Pipeline) Ready() bool { return !p.stopped.Load() }

// Deliver converts an encoded event to an Entry and queues it without blocking.
// Unknown event types are ignored.
func (p *Pipeline) Deliver(payload []byte) error {
	entry, ok := p.describe(payload)
	if !ok {
		return nil
	}
	return p.Enqueue(entry)
}

// Enqueue submits an entry for dispatch.
func (p *Pipeline) Enqueue(entry Entry) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped.Load() {
		return ErrBackpressure
	}
	select {
	case p.entries <- entry:
		return nil
	default:
		return ErrBackpressure
	}
}

func (p *Pipeline) describe(payload []byte) (Entry, bool) {
	ev := gjson.ParseBytes(payload)
	entry := Entry{Type: ev.Get("type").String(), At: p.now().UTC()}
	switch entry.Type {
	case ledger.EventAgentRegistered:
		entry.Subject = ev.Get("agent.id").String()
		entry.Summary = fmt.Sprintf("%s joined as %s", ev.Get("agent.name"), ev.Get("agent.category"))
	case ledger.EventAgentStatus:
		entry.Subject = ev.Get("agent.id").String()
		entry.Summary = fmt.Sprintf("%s is %s", ev.Get("agent.name"), ev.Get("agent.status"))
	case ledger.EventJobCreated:
		entry.Subject = ev.Get("job.id").String()
		entry.Amount = ev.Get("job.price").String()
		entry.Summary = fmt.Sprintf("%s hired %s for %s", ev.Get("job.clientAgent"), ev.Get("job.providerAgent"), ev.Get("job.service"))
	case ledger.EventJobCompleted:
		entry.Subject = ev.Get("job.id").String()
		entry.Amount = ev.Get("transaction.amount").String()
		entry.Summary = fmt.Sprintf("%s delivered %s to %s", ev.Get("job.providerAgent"), ev.Get("job.service"), ev.Get("job.clientAgent"))
	case ledger.EventJobFailed:
		entry.Subject = ev.Get("job.id").String()
		entry.Summary = fmt.Sprintf("%s failed %s: %s", ev.Get("job.providerAgent"), ev.Get("job.service"), ev.Get("job.failureReason"))
	case ledger.EventTransaction:
		entry.Subject = ev.Get("transaction.id").String()
		entry.Amount = ev.Get("transaction.amount").String()
		entry.Summary = fmt.Sprintf("%s paid %s for %s", ev.Get("transaction.from"), ev.Get("transaction.to"), ev.Get("transaction.service"))
	default:
		return Entry{}, false
	}
	return entry, true
}
