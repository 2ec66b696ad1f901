package jobqueue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/metrics"
)

// HandlerFunc processes one claimed job. A nil return completes the job; a
// non-nil return reschedules it with backoff (or fails it terminally once the
// attempt budget is spent). The context carries the worker's shutdown
// deadline; handlers doing long provider calls should layer their own shorter
// timeout on top so they self-release well before the lease expires.
type HandlerFunc func(ctx context.Context, job *models.ProvisioningJob) error

// WorkerConfig tunes the claim loop.
type WorkerConfig struct {
	PollInterval  time.Duration // sleep when the queue is idle
	LeaseDuration time.Duration // how long a claim may run before the reaper considers it abandoned
	GracePeriod   time.Duration // how long Stop waits for an in-flight job
}

// Worker claims at most one job at a time and dispatches it to a
// jobType-keyed handler. Multiple worker processes may run against the same
// table with no extra coordination; correctness rests entirely on the
// atomicity of Store.ClaimNext.
type Worker struct {
	store    *Store
	cfg      WorkerConfig
	id       string
	handlers map[models.JobType]HandlerFunc

	ctx     context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWorker creates a worker with a unique identity derived from the host
// name, used as the lease owner id.
func NewWorker(store *Store, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}

	return &Worker{
		store:    store,
		cfg:      cfg,
		id:       fmt.Sprintf("%s-%s", host, uuid.NewString()),
		handlers: make(map[models.JobType]HandlerFunc),
		stopCh:   make(chan struct{}),
	}
}

// ID returns the worker's lease owner id.
func (w *Worker) ID() string {
	return w.id
}

// Register binds a handler to a job type. Must be called before Start.
func (w *Worker) Register(jobType models.JobType, fn HandlerFunc) {
	w.handlers[jobType] = fn
}

// Start launches the claim loop.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	w.stopCh = make(chan struct{})
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.running = true

	log.Infof("[Worker] %s starting (poll=%s lease=%s)", w.id, w.cfg.PollInterval, w.cfg.LeaseDuration)

	w.wg.Add(1)
	go w.runLoop()
}

// Stop stops claiming new jobs, waits up to the grace period for an in-flight
// job to finish, then abandons it. An abandoned job's lease expires and the
// reaper makes it claimable again - at-least-once execution, never silent
// loss.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	log.Infof("[Worker] %s stopping, waiting up to %s for in-flight job", w.id, w.cfg.GracePeriod)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Infof("[Worker] %s stopped cleanly", w.id)
	case <-time.After(w.cfg.GracePeriod):
		w.cancel()
		log.Errorf("[Worker] %s grace period elapsed, abandoning in-flight job to the reaper", w.id)
		select {
		case <-done:
		case <-time.After(w.cfg.GracePeriod):
			// A handler that ignores cancellation must not hold up shutdown.
			// Its lease expires and the reaper reclaims the job.
			log.Errorf("[Worker] %s in-flight handler ignored cancellation, detaching", w.id)
		}
	}
	w.cancel()
}

// IsRunning reports whether the claim loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) runLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		claimed, err := w.processOne(w.ctx)
		switch {
		case err != nil:
			// Loop-level failure (storage unreachable, ...): back off harder
			// than the idle sleep so we do not hot-loop against a down
			// dependency. The loop itself never terminates on error.
			log.Errorf("[Worker] %s loop error: %v", w.id, err)
			w.sleep(2 * w.cfg.PollInterval)
		case claimed:
			// Drain the backlog without sleeping.
		default:
			w.sleep(w.cfg.PollInterval)
		}
	}
}

// processOne claims and dispatches a single job. The bool reports whether a
// job was claimed; the error is a loop-level failure, not a handler outcome.
func (w *Worker) processOne(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNext(w.id, w.cfg.LeaseDuration)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	metrics.JobsClaimed.Inc()
	log.Infof("[Worker] %s claimed job %d (%s, attempt %d/%d)", w.id, job.ID, job.JobType, job.Attempts, job.MaxAttempts)

	if handlerErr := w.dispatch(ctx, job); handlerErr != nil {
		terminal := job.Attempts >= job.MaxAttempts
		delay := RetryDelay(job.Attempts)
		if err := w.store.Fail(job.ID, w.id, handlerErr, delay); err != nil {
			log.Errorf("[Worker] %s could not record failure of job %d: %v", w.id, job.ID, err)
		} else if terminal {
			metrics.JobsFailed.WithLabelValues("true").Inc()
			log.Errorf("[Worker] %s job %d failed terminally after %d attempts: %v", w.id, job.ID, job.Attempts, handlerErr)
		} else {
			metrics.JobsFailed.WithLabelValues("false").Inc()
			log.Errorf("[Worker] %s job %d failed, retrying in %s: %v", w.id, job.ID, delay, handlerErr)
		}
		return true, nil
	}

	if err := w.store.Complete(job.ID, w.id); err != nil {
		log.Errorf("[Worker] %s could not complete job %d: %v", w.id, job.ID, err)
		return true, nil
	}
	metrics.JobsCompleted.Inc()
	log.Infof("[Worker] %s completed job %d (%s)", w.id, job.ID, job.JobType)
	return true, nil
}

// dispatch invokes the handler for the job's type, converting a missing
// handler or a panic into an ordinary failure so nothing escapes the
// dispatch boundary uncaught.
func (w *Worker) dispatch(ctx context.Context, job *models.ProvisioningJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, ok := w.handlers[job.JobType]
	if !ok {
		return fmt.Errorf("no handler registered for job type %q", job.JobType)
	}
	return handler(ctx, job)
}

// sleep waits for d or until the worker is stopped, whichever comes first.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}
