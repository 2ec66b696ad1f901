package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/hirestack/hirestack/internal/pkg/metrics"
)

// Reaper periodically recovers jobs abandoned by crashed workers: any
// processing row whose lease expired goes back to pending, attempts intact.
// It runs on its own timer, unrelated to worker cadence, so recovery is never
// blocked by a long-running job.
type Reaper struct {
	store    *Store
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewReaper creates a reaper sweeping at the given interval.
func NewReaper(store *Store, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.stopCh = make(chan struct{})
	r.running = true

	log.Infof("[Reaper] starting (interval=%s)", r.interval)

	r.wg.Add(1)
	go r.runLoop()
}

// Stop terminates the sweep loop and waits for a sweep in progress.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	log.Info("[Reaper] stopped")
}

func (r *Reaper) runLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.SweepOnce(); err != nil {
				log.Errorf("[Reaper] sweep error: %v", err)
			}
		}
	}
}

// SweepOnce runs a single sweep and returns the number of jobs reclaimed.
func (r *Reaper) SweepOnce() (int64, error) {
	reaped, err := r.store.ReapExpired()
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		metrics.JobsReaped.Add(float64(reaped))
		log.Infof("[Reaper] reset %d expired lease(s) to pending", reaped)
	}
	return reaped, nil
}
