// internal/agent/scheduler/scheduler.go
// Package scheduler owns the agent's run state. It drives the discovery
// pipeline in batches, re-arms itself on a fixed interval, and is the only
// component that mutates AgentStatus.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"trenddrop-agent/internal/agent/catalog"
	"trenddrop-agent/internal/agent/dedup"
	"trenddrop-agent/internal/agent/pipeline"
	"trenddrop-agent/internal/agent/status"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/common/metrics"
	"trenddrop-agent/internal/common/observability"
	"trenddrop-agent/internal/models"
)

// BatchRunner is the slice of the pipeline the scheduler drives.
type BatchRunner interface {
	DiscoverBatch(ctx context.Context, count int, shouldContinue func() bool, onProgress pipeline.ProgressFunc) ([]models.Product, error)
}

// Mailer sends error-state alerts. May be nil when alerting is disabled.
type Mailer interface {
	SendErrorAlert(ctx context.Context, subject, body string) error
}

// Options tunes the scheduler.
type Options struct {
	BatchSize   int
	Interval    time.Duration
	MaxProducts int
}

// Scheduler runs at most one batch at a time: the periodic timer and the
// manual trigger share the same batch-active guard, so they cannot overlap.
type Scheduler struct {
	runner  BatchRunner
	gateway catalog.Gateway
	index   *dedup.Index
	bcast   *status.Broadcaster
	obs     *observability.Observability
	mailer  Mailer
	opts    Options
	log     logger.Logger

	mu          sync.Mutex
	st          models.AgentStatus
	running     bool
	batchActive bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func New(runner BatchRunner, gateway catalog.Gateway, index *dedup.Index, bcast *status.Broadcaster, obs *observability.Observability, mailer Mailer, opts Options, log logger.Logger) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Hour
	}
	if opts.MaxProducts <= 0 {
		opts.MaxProducts = 1000
	}
	return &Scheduler{
		runner:  runner,
		gateway: gateway,
		index:   index,
		bcast:   bcast,
		obs:     obs,
		mailer:  mailer,
		opts:    opts,
		st:      models.AgentStatus{State: models.StateIdle, Message: "agent created"},
		log:     log.With(map[string]interface{}{"component": "scraping-scheduler"}),
	}
}

// Initialize rebuilds the dedup index from the existing catalog and
// publishes the initial idle status.
func (s *Scheduler) Initialize(ctx context.Context) error {
	existing, err := s.gateway.FindExisting(ctx)
	if err != nil {
		return err
	}
	s.index.Rebuild(existing)

	s.update(func(st *models.AgentStatus) {
		st.State = models.StateIdle
		st.Message = fmt.Sprintf("agent ready, %d products in catalog", len(existing))
		st.Progress = 0
	})
	return nil
}

// Start arms the scheduler: one batch immediately, then one per interval.
// Calling Start while running is an idempotent no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("start ignored, already running", nil)
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.update(func(st *models.AgentStatus) {
		st.State = models.StateRunning
		st.Message = "autonomous discovery started"
		next := time.Now().Add(s.opts.Interval)
		st.NextRun = &next
	})

	// Batches must outlive the caller: request-scoped contexts are canceled
	// the moment the handler returns. Stop and stopCh remain the only
	// cancellation path; the caller's context contributes values only.
	s.wg.Add(1)
	go s.loop(context.WithoutCancel(ctx), stopCh)
}

func (s *Scheduler) loop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	s.runBatch(ctx, s.opts.BatchSize)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.isRunning() {
				return
			}
			s.runBatch(ctx, s.opts.BatchSize)
		}
	}
}

// Stop clears the timer and returns the agent to idle. An in-flight batch
// item finishes; no new item starts. Cancellation is cooperative only.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.update(func(st *models.AgentStatus) {
		st.State = models.StateIdle
		st.Message = "autonomous discovery stopped"
		st.NextRun = nil
	})
	s.log.Info("scheduler stopped", nil)
}

// TriggerNow runs an out-of-band batch immediately without disturbing the
// periodic timer. Valid only while running; overlapping triggers are
// rejected by the batch-active guard.
func (s *Scheduler) TriggerNow(ctx context.Context, targetCount int) error {
	if !s.isRunning() {
		return fmt.Errorf("agent is not running")
	}
	if targetCount <= 0 {
		targetCount = s.opts.BatchSize
	}

	// Same detachment as Start: the batch must not die with the request
	// that triggered it.
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBatch(runCtx, targetCount)
	}()
	return nil
}

// Status returns a copy of the current agent status.
func (s *Scheduler) Status() models.AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// ResetCounter zeroes the productsFound counter and republishes status.
func (s *Scheduler) ResetCounter() {
	s.update(func(st *models.AgentStatus) {
		st.ProductsFound = 0
		st.Message = "products found counter reset"
	})
}

// Wait blocks until background work has finished. Used by shutdown paths.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runBatch executes one pipeline batch under the shared batch-active guard.
// Any error or panic escaping the batch trips the agent into the error
// state and halts the periodic timer until Start is called again.
func (s *Scheduler) runBatch(ctx context.Context, targetCount int) {
	s.mu.Lock()
	if s.batchActive {
		s.mu.Unlock()
		s.log.Info("batch already in flight, skipping", nil)
		return
	}
	s.batchActive = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.batchActive = false
		s.mu.Unlock()

		if r := recover(); r != nil {
			s.toError(ctx, fmt.Sprintf("batch panicked: %v", r))
		}
	}()

	start := time.Now()

	existing, err := s.gateway.CountProducts(ctx)
	if err != nil {
		s.toError(ctx, fmt.Sprintf("catalog unreachable: %v", err))
		return
	}
	if existing >= s.opts.MaxProducts {
		s.update(func(st *models.AgentStatus) {
			st.State = models.StateIdle
			st.Message = fmt.Sprintf("catalog full (%d products), skipping batch", existing)
			st.Progress = 100
		})
		return
	}
	if remaining := s.opts.MaxProducts - existing; targetCount > remaining {
		targetCount = remaining
	}

	s.update(func(st *models.AgentStatus) {
		st.State = models.StateRunning
		st.Message = fmt.Sprintf("discovering %d products", targetCount)
		st.Progress = 10
	})

	products, err := s.runner.DiscoverBatch(ctx, targetCount, s.isRunning, func(processed, accepted int) {
		s.update(func(st *models.AgentStatus) {
			st.State = models.StateVerifying
			st.Message = fmt.Sprintf("processed %d candidates, accepted %d", processed, accepted)
			st.Progress = batchProgress(processed, targetCount)
		})
	})
	if err != nil {
		s.obs.RecordBatchProcessed(ctx, "error")
		s.obs.RecordBatchDuration(ctx, time.Since(start), "error")
		s.toError(ctx, fmt.Sprintf("batch failed: %v", err))
		return
	}

	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	s.obs.RecordBatchProcessed(ctx, "success")
	s.obs.RecordBatchDuration(ctx, time.Since(start), "success")

	now := time.Now()
	next := now.Add(s.opts.Interval)
	s.update(func(st *models.AgentStatus) {
		st.State = models.StateIdle
		st.Message = fmt.Sprintf("batch complete, %d products accepted", len(products))
		st.Progress = 100
		st.ProductsFound += len(products)
		st.LastRun = &now
		if s.isRunningLocked() {
			st.NextRun = &next
		}
	})

	s.log.Info("batch finished", map[string]interface{}{
		"accepted": len(products),
		"duration": time.Since(start).String(),
	})
}

// batchProgress maps item completion onto the 10-100 band.
func batchProgress(processed, batchSize int) int {
	if batchSize <= 0 {
		return 10
	}
	if processed > batchSize {
		processed = batchSize
	}
	p := 10 + int(math.Round(90*float64(processed)/float64(batchSize)))
	if p > 100 {
		p = 100
	}
	return p
}

// toError transitions to the error state, halts the timer, and fires the
// alert mail when configured.
func (s *Scheduler) toError(ctx context.Context, message string) {
	s.mu.Lock()
	wasRunning := s.running
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.update(func(st *models.AgentStatus) {
		st.State = models.StateError
		st.Message = message
		st.Progress = 0
		st.NextRun = nil
	})

	s.log.Error("agent entered error state", map[string]interface{}{
		"message":    message,
		"wasRunning": wasRunning,
	})

	if s.mailer != nil {
		if err := s.mailer.SendErrorAlert(ctx, "TrendDrop agent error", message); err != nil {
			s.log.Warn("error alert mail failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// update mutates the status under lock and publishes the new snapshot.
func (s *Scheduler) update(mutate func(*models.AgentStatus)) {
	s.mu.Lock()
	mutate(&s.st)
	ev := models.NewStatusEvent(s.st)
	s.mu.Unlock()

	s.bcast.Publish(ev)
}

// isRunningLocked is update-callback safe: update already holds the lock.
func (s *Scheduler) isRunningLocked() bool {
	return s.running
}
