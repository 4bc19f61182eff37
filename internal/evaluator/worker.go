// Package evaluator scores profile snapshots in the background.
package evaluator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/i18n"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/soyeahso/promptsmith/internal/profile"
	"github.com/soyeahso/promptsmith/internal/prompts"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
	DefaultTimeout   = 90 * time.Second
)

// Job is one scoring request.
type Job struct {
	SessionID string
	Snapshot  profile.Snapshot
	Config    llm.APIConfig
	Client    llm.Client
	Language  string
	// Deliver receives exactly one result per submitted job. It runs on a
	// worker goroutine, or on the caller's goroutine when Submit rejects
	// the job.
	Deliver func(domain.EvaluationResult)
}

// Options configures a Worker.
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	// OnResult observes every delivered result.
	OnResult func(domain.EvaluationResult)
	Log      *logging.Logger
}

// Worker runs evaluation jobs off the connection goroutines.
type Worker struct {
	opts  Options
	queue chan Job
	sem   chan struct{}
	log   *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	jobs    sync.WaitGroup
}

// NewWorker creates a stopped worker.
func NewWorker(opts Options) *Worker {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Worker{
		opts:  opts,
		queue: make(chan Job, opts.QueueSize),
		sem:   make(chan struct{}, opts.Workers),
		log:   opts.Log.Sub("evaluator"),
	}
}

// Start launches the dispatcher. It is a no-op if already running.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.dispatch(ctx, w.done)
	w.log.Info().Int("workers", w.opts.Workers).Int("queue", w.opts.QueueSize).Msg("evaluator started")
}

// Stop cancels in-flight jobs and waits for them to deliver.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.jobs.Wait()
	w.log.Info().Msg("evaluator stopped")
}

// Submit enqueues job without blocking. When the worker is stopped or the
// queue is full the job is answered at once with a not-ready busy result
// and Submit returns false.
func (w *Worker) Submit(job Job) bool {
	w.mu.Lock()
	accepted := false
	if w.running {
		select {
		case w.queue <- job:
			accepted = true
		default:
		}
	}
	w.mu.Unlock()

	if !accepted {
		w.log.Warn().Str("sessionId", job.SessionID).Msg("evaluation rejected, queue full")
		w.deliver(job, w.failure(job, i18n.For(job.Language).T(i18n.MsgEvaluationBusy)))
	}
	return accepted
}

// Pending is the number of queued jobs not yet dispatched.
func (w *Worker) Pending() int { return len(w.queue) }

func (w *Worker) dispatch(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case job := <-w.queue:
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				w.deliver(job, w.failure(job, i18n.For(job.Language).T(i18n.MsgEvaluationBusy)))
				w.drain()
				return
			}
			w.jobs.Add(1)
			go func() {
				defer func() {
					<-w.sem
					w.jobs.Done()
				}()
				w.deliver(job, w.run(ctx, job))
			}()
		}
	}
}

// drain answers queued jobs after shutdown so no caller waits forever.
func (w *Worker) drain() {
	for {
		select {
		case job := <-w.queue:
			w.deliver(job, w.failure(job, i18n.For(job.Language).T(i18n.MsgEvaluationBusy)))
		default:
			return
		}
	}
}

func (w *Worker) run(ctx context.Context, job Job) domain.EvaluationResult {
	catalog := i18n.For(job.Language)
	if job.Snapshot.Empty() {
		return w.failure(job, catalog.T(i18n.MsgEvaluationEmpty))
	}
	if job.Client == nil {
		return w.failure(job, catalog.T(i18n.MsgEvaluationFailed, llm.ErrNotConfigured))
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	start := time.Now()
	set := prompts.For(job.Language)
	req := job.Config.NewEvaluationRequest(set.Evaluator(job.Config.NSFWMode), job.Snapshot.FullText())

	resp, err := job.Client.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		w.log.Warn().Err(err).Str("sessionId", job.SessionID).Msg("evaluation call failed")
		return w.failure(job, catalog.T(i18n.MsgEvaluationFailed, err))
	}

	res, err := ParseReply(resp.Content)
	if err != nil {
		w.log.Warn().Err(err).Str("sessionId", job.SessionID).Msg("evaluation reply unparseable")
		return w.failure(job, catalog.T(i18n.MsgEvaluationFailed, err))
	}
	res.SessionID = job.SessionID
	res.Snapshot = job.Snapshot

	w.log.Debug().
		Str("sessionId", job.SessionID).
		Bool("ready", res.Ready).
		Dur("duration", time.Since(start)).
		Msg("evaluation complete")
	return res
}

func (w *Worker) failure(job Job, critique string) domain.EvaluationResult {
	return domain.EvaluationResult{
		SessionID: job.SessionID,
		Critique:  critique,
		Ready:     false,
		Failed:    true,
		Snapshot:  job.Snapshot,
	}
}

func (w *Worker) deliver(job Job, res domain.EvaluationResult) {
	if w.opts.OnResult != nil {
		w.opts.OnResult(res)
	}
	if job.Deliver != nil {
		job.Deliver(res)
	}
}
