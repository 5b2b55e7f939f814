package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"studio-intake/internal/observability"
)

const (
	coreWorkers     = 2
	maxWorkers      = 5
	queueCapacity   = 100
	burstIdleExit   = 5 * time.Second
	maxUserAgentLen = 500
)

// Recorder is the audit sink. Record never blocks and never surfaces an
// error: entries go to a bounded background pool, and when the queue is
// saturated the write happens synchronously on the caller's goroutine instead
// of being dropped.
type Recorder struct {
	store  Store
	logger *observability.Logger

	queue   chan Entry
	workers atomic.Int32
	wg      sync.WaitGroup

	stop     chan struct{}
	stopOnce sync.Once
}

func NewRecorder(store Store, logger *observability.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan Entry, queueCapacity),
		stop:   make(chan struct{}),
	}

	for i := 0; i < coreWorkers; i++ {
		r.workers.Add(1)
		r.wg.Add(1)
		go r.coreWorker()
	}

	return r
}

func (r *Recorder) Record(actor string, action Action, targetEntity string, targetID *string, oldValue, newValue *string, ip, userAgent string) {
	if ip == "" {
		ip = "unknown"
	}

	entry := Entry{
		Actor:        actor,
		Action:       action,
		TargetEntity: targetEntity,
		TargetID:     targetID,
		OldValue:     oldValue,
		NewValue:     newValue,
		IP:           ip,
		UserAgent:    truncate(userAgent, maxUserAgentLen),
		PerformedAt:  time.Now().UTC(),
	}

	select {
	case r.queue <- entry:
		return
	default:
	}

	if r.spawnBurstWorker() {
		select {
		case r.queue <- entry:
			return
		default:
		}
	}

	// queue saturated: back-pressure, not loss
	r.logger.Info("audit_queue_saturated", map[string]any{"action": string(action)})
	r.write(entry)
}

func (r *Recorder) spawnBurstWorker() bool {
	for {
		current := r.workers.Load()
		if current >= maxWorkers {
			return false
		}
		if r.workers.CompareAndSwap(current, current+1) {
			r.wg.Add(1)
			go r.burstWorker()
			return true
		}
	}
}

func (r *Recorder) coreWorker() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-r.stop:
			return
		}
	}
}

func (r *Recorder) burstWorker() {
	defer r.wg.Done()
	defer r.workers.Add(-1)

	idle := time.NewTimer(burstIdleExit)
	defer idle.Stop()

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(burstIdleExit)
		case <-idle.C:
			return
		case <-r.stop:
			return
		}
	}
}

// write commits independently of the triggering request: a detached context
// so the caller's cancellation or rollback cannot take the entry with it.
func (r *Recorder) write(entry Entry) {
	if err := r.store.Append(context.Background(), entry); err != nil {
		r.logger.Error("audit_write_failed", map[string]any{
			"action": string(entry.Action),
			"actor":  entry.Actor,
			"error":  err.Error(),
		})
		sentry.CaptureException(err)
	}
}

func (r *Recorder) QueueDepth() int {
	return len(r.queue)
}

// Close stops the workers after draining what is already queued.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() {
		for {
			select {
			case entry := <-r.queue:
				r.write(entry)
			default:
				close(r.stop)
				r.wg.Wait()
				return
			}
		}
	})
}

func truncate(value string, max int) string {
	if len(value) > max {
		return value[:max]
	}
	return value
}
