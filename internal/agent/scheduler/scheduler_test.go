// internal/agent/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trenddrop-agent/internal/agent/dedup"
	"trenddrop-agent/internal/agent/pipeline"
	"trenddrop-agent/internal/agent/status"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/common/observability"
	"trenddrop-agent/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

// fakeRunner simulates the pipeline: every call yields itemsPerBatch
// products, consulting shouldContinue between items like the real one.
type fakeRunner struct {
	mu            sync.Mutex
	itemsPerBatch int
	err           error
	calls         int
	itemGate      chan struct{} // when set, each item waits for one tick
}

func (r *fakeRunner) DiscoverBatch(ctx context.Context, count int, shouldContinue func() bool, onProgress pipeline.ProgressFunc) ([]models.Product, error) {
	r.mu.Lock()
	r.calls++
	gate := r.itemGate
	err := r.err
	items := r.itemsPerBatch
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if items > count {
		items = count
	}

	var out []models.Product
	for i := 0; i < items; i++ {
		if shouldContinue != nil && !shouldContinue() {
			break
		}
		if gate != nil {
			<-gate
		}
		out = append(out, models.Product{ID: int64(i + 1), Name: "Gadget", Category: "Electronics"})
		if onProgress != nil {
			onProgress(i+1, len(out))
		}
	}
	return out, nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeGateway struct {
	existing []models.Product
	count    int
	countErr error
	findErr  error
}

func (g *fakeGateway) FindExisting(ctx context.Context) ([]models.Product, error) {
	return g.existing, g.findErr
}
func (g *fakeGateway) CountProducts(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return g.count, g.countErr
}
func (g *fakeGateway) CreateEntry(ctx context.Context, e *models.CatalogEntry) (int64, error) {
	return 0, nil
}
func (g *fakeGateway) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	return 0, nil
}
func (g *fakeGateway) CreateTrendPoints(ctx context.Context, id int64, p []models.TrendPoint) error {
	return nil
}
func (g *fakeGateway) CreateRegions(ctx context.Context, id int64, r []models.Region) error {
	return nil
}
func (g *fakeGateway) CreateVideos(ctx context.Context, id int64, v []models.Video) error { return nil }

type recordingMailer struct {
	mu       sync.Mutex
	subjects []string
}

func (m *recordingMailer) SendErrorAlert(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

type schedFixture struct {
	sched   *Scheduler
	runner  *fakeRunner
	gateway *fakeGateway
	index   *dedup.Index
	bcast   *status.Broadcaster
	mailer  *recordingMailer
}

func newSchedFixture(t *testing.T, opts Options) *schedFixture {
	log := logger.NewTestLogger(t)
	runner := &fakeRunner{itemsPerBatch: 100}
	gateway := &fakeGateway{}
	index := dedup.NewIndex(log)
	bcast := status.NewBroadcaster(log)
	mailer := &recordingMailer{}

	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}

	sched := New(runner, gateway, index, bcast, &observability.Observability{}, mailer, opts, log)
	return &schedFixture{sched: sched, runner: runner, gateway: gateway, index: index, bcast: bcast, mailer: mailer}
}

func waitForState(t *testing.T, s *Scheduler, want models.AgentState) {
	require.Eventually(t, func() bool {
		return s.Status().State == want
	}, 2*time.Second, 5*time.Millisecond, "never reached state %s", want)
}

// ==========================
// Lifecycle Tests
// ==========================

func TestScheduler_Initialize_RebuildsIndex(t *testing.T) {
	f := newSchedFixture(t, Options{})
	f.gateway.existing = []models.Product{{Name: "Magnetic Phone Mount", Category: "Electronics"}}

	require.NoError(t, f.sched.Initialize(context.Background()))

	assert.True(t, f.index.IsDuplicate(models.Candidate{Name: "Magnetic Phone Mount", Category: "Electronics"}))
	assert.Equal(t, models.StateIdle, f.sched.Status().State)
}

func TestScheduler_Initialize_GatewayFailure(t *testing.T) {
	f := newSchedFixture(t, Options{})
	f.gateway.findErr = errors.New("connection refused")

	assert.Error(t, f.sched.Initialize(context.Background()))
}

func TestScheduler_StartRunsImmediateBatch(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 3})

	f.sched.Start(context.Background())
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		st := f.sched.Status()
		return st.State == models.StateIdle && st.ProductsFound == 3
	}, 2*time.Second, 5*time.Millisecond)

	st := f.sched.Status()
	assert.Equal(t, 100, st.Progress)
	assert.NotNil(t, st.LastRun)
	assert.NotNil(t, st.NextRun)
	assert.Equal(t, 1, f.runner.callCount())
}

func TestScheduler_StartTwiceIsNoOp(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 2})

	f.sched.Start(context.Background())
	f.sched.Start(context.Background())
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		return f.sched.Status().State == models.StateIdle && f.runner.callCount() > 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.runner.callCount(), "second start must not spawn a second batch")
}

func TestScheduler_StopMidBatchFinishesItem(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 5})
	f.runner.itemGate = make(chan struct{})

	f.sched.Start(context.Background())

	// Let exactly one item through, then stop while the batch is waiting.
	f.runner.itemGate <- struct{}{}
	f.sched.Stop()
	close(f.runner.itemGate)

	require.Eventually(t, func() bool {
		st := f.sched.Status()
		return st.State == models.StateIdle && st.ProductsFound >= 1
	}, 2*time.Second, 5*time.Millisecond)

	st := f.sched.Status()
	assert.Less(t, st.ProductsFound, 5, "no new items start after stop")
	assert.Nil(t, st.NextRun)
}

func TestScheduler_BatchesOutliveCallerContext(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 1, Interval: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the caller is gone before the loop even starts

	f.sched.Start(ctx)
	defer f.sched.Stop()

	// Both the immediate batch and at least one timer-driven batch complete.
	require.Eventually(t, func() bool {
		return f.runner.callCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, models.StateError, f.sched.Status().State)
}

func TestScheduler_StopWhenIdleIsNoOp(t *testing.T) {
	f := newSchedFixture(t, Options{})
	f.sched.Stop() // must not panic
	assert.Equal(t, models.StateIdle, f.sched.Status().State)
}

// ==========================
// Trigger Tests
// ==========================

func TestScheduler_TriggerNow_RequiresRunning(t *testing.T) {
	f := newSchedFixture(t, Options{})
	err := f.sched.TriggerNow(context.Background(), 3)
	assert.Error(t, err)
}

func TestScheduler_TriggerNow_RunsExtraBatch(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 2})

	f.sched.Start(context.Background())
	defer f.sched.Stop()
	waitForState(t, f.sched, models.StateIdle)

	require.NoError(t, f.sched.TriggerNow(context.Background(), 2))
	require.Eventually(t, func() bool {
		return f.runner.callCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.sched.Status().ProductsFound == 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerNowOutlivesCallerContext(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 2})

	f.sched.Start(context.Background())
	defer f.sched.Stop()
	require.Eventually(t, func() bool {
		return f.sched.Status().ProductsFound == 2
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.sched.TriggerNow(ctx, 1))

	require.Eventually(t, func() bool {
		return f.sched.Status().ProductsFound == 3
	}, 2*time.Second, 5*time.Millisecond)
}

// ==========================
// Error State Tests
// ==========================

func TestScheduler_BatchErrorTripsErrorStateAndAlerts(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 2})
	f.runner.err = errors.New("ALL_PROVIDERS_FAILED")

	f.sched.Start(context.Background())

	waitForState(t, f.sched, models.StateError)
	st := f.sched.Status()
	assert.Equal(t, 0, st.Progress)
	assert.Nil(t, st.NextRun)

	require.Eventually(t, func() bool {
		return f.mailer.count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The timer is halted: the agent no longer counts as running.
	assert.Error(t, f.sched.TriggerNow(context.Background(), 1))
}

func TestScheduler_CatalogOutageTripsErrorState(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 2})
	f.gateway.countErr = errors.New("connection refused")

	f.sched.Start(context.Background())

	waitForState(t, f.sched, models.StateError)
	assert.Equal(t, 0, f.runner.callCount(), "batch never starts without the catalog")
}

func TestScheduler_RestartAfterErrorRecovers(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 1})
	f.runner.err = errors.New("boom")

	f.sched.Start(context.Background())
	waitForState(t, f.sched, models.StateError)

	f.runner.mu.Lock()
	f.runner.err = nil
	f.runner.mu.Unlock()

	f.sched.Start(context.Background())
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		st := f.sched.Status()
		return st.State == models.StateIdle && st.ProductsFound == 1
	}, 2*time.Second, 5*time.Millisecond)
}

// ==========================
// Catalog Cap Tests
// ==========================

func TestScheduler_SkipsBatchWhenCatalogFull(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 5, MaxProducts: 10})
	f.gateway.count = 10

	f.sched.Start(context.Background())
	defer f.sched.Stop()

	waitForState(t, f.sched, models.StateIdle)
	require.Eventually(t, func() bool {
		return f.sched.Status().Progress == 100
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.runner.callCount())
}

func TestScheduler_ShrinksBatchToRemainingCapacity(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 5, MaxProducts: 10})
	f.gateway.count = 8

	f.sched.Start(context.Background())
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		return f.sched.Status().ProductsFound == 2
	}, 2*time.Second, 5*time.Millisecond, "only the remaining capacity is requested")
}

// ==========================
// Counter / Progress Tests
// ==========================

func TestScheduler_ResetCounter(t *testing.T) {
	f := newSchedFixture(t, Options{BatchSize: 2})

	f.sched.Start(context.Background())
	require.Eventually(t, func() bool {
		return f.sched.Status().ProductsFound == 2
	}, 2*time.Second, 5*time.Millisecond)
	f.sched.Stop()

	f.sched.ResetCounter()
	assert.Equal(t, 0, f.sched.Status().ProductsFound)
}

func TestBatchProgress(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		batchSize int
		expected  int
	}{
		{name: "start of band", processed: 0, batchSize: 5, expected: 10},
		{name: "one of five", processed: 1, batchSize: 5, expected: 28},
		{name: "three of five", processed: 3, batchSize: 5, expected: 64},
		{name: "complete", processed: 5, batchSize: 5, expected: 100},
		{name: "over budget clamps", processed: 9, batchSize: 5, expected: 100},
		{name: "zero batch size", processed: 1, batchSize: 0, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, batchProgress(tt.processed, tt.batchSize))
		})
	}
}
