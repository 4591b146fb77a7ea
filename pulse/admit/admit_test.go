package admit

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/jobs"
)

// fakeStarter records start requests. When gate is set, each request blocks
// until the gate is closed.
type fakeStarter struct {
	mu    sync.Mutex
	ids   []string
	err   error
	gate  chan struct{}
	panic bool

	concurrent atomic.Int32
	maxSeen    atomic.Int32
}

func (f *fakeStarter) StartJob(ctx context.Context, id string) error {
	n := f.concurrent.Add(1)
	defer f.concurrent.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.panic {
		panic("starter blew up")
	}
	return f.err
}

func (f *fakeStarter) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

// fakeRefresher counts refresh nudges and records whether the guard was
// already clear when each one arrived
type fakeRefresher struct {
	count        atomic.Int32
	guardCleared atomic.Bool
	ctrl         *Controller
}

func (f *fakeRefresher) TriggerRefresh() {
	if f.ctrl != nil {
		f.guardCleared.Store(!f.ctrl.InFlight())
	}
	f.count.Add(1)
}

func newTestController(starter Starter, opts Options) (*Controller, *fakeRefresher) {
	refresher := &fakeRefresher{}
	c := New(starter, refresher, opts, zap.NewNop().Sugar())
	refresher.ctrl = c
	return c, refresher
}

func snap(list ...jobs.Job) jobs.Snapshot {
	return jobs.NewSnapshot(list, time.Now())
}

func TestNext(t *testing.T) {
	tests := []struct {
		name   string
		list   []jobs.Job
		wantID string
		wantOK bool
	}{
		{name: "empty", list: nil},
		{
			name:   "first queued wins",
			list:   []jobs.Job{jobs.New("1", jobs.StatusQueued), jobs.New("2", jobs.StatusQueued)},
			wantID: "1", wantOK: true,
		},
		{
			name: "running blocks",
			list: []jobs.Job{jobs.New("1", jobs.StatusRunning), jobs.New("2", jobs.StatusQueued)},
		},
		{
			name: "running later in list still blocks",
			list: []jobs.Job{jobs.New("1", jobs.StatusQueued), jobs.New("2", jobs.StatusRunning)},
		},
		{
			name:   "terminal jobs skipped",
			list:   []jobs.Job{jobs.New("1", jobs.StatusCompleted), jobs.New("2", jobs.StatusError), jobs.New("3", jobs.StatusQueued)},
			wantID: "3", wantOK: true,
		},
		{
			name: "unknown status is not queued",
			list: []jobs.Job{jobs.New("1", "paused")},
		},
		{
			name: "nothing eligible",
			list: []jobs.Job{jobs.New("1", jobs.StatusCompleted), jobs.New("2", jobs.StatusStopped)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, ok := Next(snap(tt.list...))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, job.ID)
		})
	}
}

func TestObserve_StartsFirstQueuedOnly(t *testing.T) {
	starter := &fakeStarter{}
	c, refresher := newTestController(starter, Options{})

	issued := c.Observe(snap(jobs.New("1", jobs.StatusQueued), jobs.New("2", jobs.StatusQueued)))
	c.Wait()

	assert.True(t, issued)
	assert.Equal(t, []string{"1"}, starter.started())
	assert.Equal(t, int32(1), refresher.count.Load())
	assert.False(t, c.InFlight())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Attempts)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, "1", stats.LastJobID)
}

func TestObserve_RunningJobBlocksStart(t *testing.T) {
	starter := &fakeStarter{}
	c, refresher := newTestController(starter, Options{})

	issued := c.Observe(snap(jobs.New("1", jobs.StatusRunning), jobs.New("2", jobs.StatusQueued)))
	c.Wait()

	assert.False(t, issued)
	assert.Empty(t, starter.started())
	assert.Equal(t, int32(0), refresher.count.Load())
}

func TestObserve_NoQueuedJob(t *testing.T) {
	starter := &fakeStarter{}
	c, refresher := newTestController(starter, Options{})

	assert.False(t, c.Observe(snap()))
	assert.False(t, c.Observe(snap(jobs.New("1", jobs.StatusCompleted))))
	c.Wait()

	assert.Empty(t, starter.started())
	assert.Equal(t, int32(0), refresher.count.Load())
}

func TestObserve_FailedStartClearsGuardAndRefreshesOnce(t *testing.T) {
	starter := &fakeStarter{err: errors.New("connection reset")}
	c, refresher := newTestController(starter, Options{})

	assert.NotPanics(t, func() {
		c.Observe(snap(jobs.New("1", jobs.StatusQueued)))
		c.Wait()
	})

	assert.False(t, c.InFlight())
	assert.Equal(t, int32(1), refresher.count.Load())
	assert.True(t, refresher.guardCleared.Load(), "guard must be clear when the refresh fires")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.ConsecutiveFailures)
	assert.Contains(t, stats.LastError, "connection reset")

	// Same snapshot again: retried on the next cycle
	assert.True(t, c.Observe(snap(jobs.New("1", jobs.StatusQueued))))
	c.Wait()
	assert.Equal(t, []string{"1", "1"}, starter.started())
	assert.Equal(t, int32(2), refresher.count.Load())
}

func TestObserve_SuccessClearsGuardBeforeRefresh(t *testing.T) {
	starter := &fakeStarter{}
	c, refresher := newTestController(starter, Options{})

	c.Observe(snap(jobs.New("1", jobs.StatusQueued)))
	c.Wait()

	assert.Equal(t, int32(1), refresher.count.Load())
	assert.True(t, refresher.guardCleared.Load())
}

func TestObserve_StarterPanicIsContained(t *testing.T) {
	starter := &fakeStarter{panic: true}
	c, refresher := newTestController(starter, Options{})

	c.Observe(snap(jobs.New("1", jobs.StatusQueued)))
	c.Wait()

	assert.False(t, c.InFlight())
	assert.Equal(t, int32(1), refresher.count.Load())
	assert.Contains(t, c.Stats().LastError, "panicked")
}

func TestObserve_GuardHoldsUnderRapidUpdates(t *testing.T) {
	starter := &fakeStarter{gate: make(chan struct{})}
	c, refresher := newTestController(starter, Options{})

	require.True(t, c.Observe(snap(jobs.New("1", jobs.StatusQueued))))
	assert.True(t, c.InFlight())

	for i := 0; i < 50; i++ {
		assert.False(t, c.Observe(snap(jobs.New("1", jobs.StatusQueued), jobs.New("2", jobs.StatusQueued))))
	}

	close(starter.gate)
	c.Wait()

	assert.Equal(t, []string{"1"}, starter.started())
	assert.Equal(t, int32(1), refresher.count.Load())
}

func TestObserve_ConcurrentObserversStartOnce(t *testing.T) {
	starter := &fakeStarter{gate: make(chan struct{})}
	c, _ := newTestController(starter, Options{})

	s := snap(jobs.New("1", jobs.StatusQueued))
	var issued atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Observe(s) {
				issued.Add(1)
			}
		}()
	}
	wg.Wait()

	close(starter.gate)
	c.Wait()

	assert.Equal(t, int32(1), issued.Load())
	assert.Len(t, starter.started(), 1)
	assert.Equal(t, int32(1), starter.maxSeen.Load())
}

func TestObserve_LimiterThrottles(t *testing.T) {
	starter := &fakeStarter{}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c, refresher := newTestController(starter, Options{Limiter: limiter})

	s := snap(jobs.New("1", jobs.StatusQueued))
	assert.True(t, c.Observe(s))
	c.Wait()

	assert.False(t, c.Observe(s), "second start within the window is throttled")
	assert.False(t, c.InFlight(), "throttling releases the guard")
	c.Wait()

	assert.Len(t, starter.started(), 1)
	assert.Equal(t, int32(1), refresher.count.Load())
	assert.Equal(t, int64(1), c.Stats().Throttled)
}

func TestObserve_StartTimeout(t *testing.T) {
	starter := &ctxStarter{}
	c, _ := newTestController(starter, Options{StartTimeout: 10 * time.Millisecond})

	c.Observe(snap(jobs.New("1", jobs.StatusQueued)))
	c.Wait()

	assert.ErrorIs(t, starter.err, context.DeadlineExceeded)
	assert.False(t, c.InFlight())
}

type ctxStarter struct{ err error }

func (s *ctxStarter) StartJob(ctx context.Context, id string) error {
	<-ctx.Done()
	s.err = ctx.Err()
	return s.err
}

func TestNewStartLimiter(t *testing.T) {
	assert.Nil(t, NewStartLimiter(0))
	assert.Nil(t, NewStartLimiter(-1))

	l := NewStartLimiter(60)
	require.NotNil(t, l)
	assert.InDelta(t, 1.0, float64(l.Limit()), 0.0001)
	assert.Equal(t, 1, l.Burst())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindConflict, Classify(errors.FromStatus(http.StatusConflict, "")))
	assert.Equal(t, KindNotFound, Classify(errors.FromStatus(http.StatusNotFound, "")))
	assert.Equal(t, KindUnauthorized, Classify(errors.FromStatus(http.StatusUnauthorized, "")))
	assert.Equal(t, KindTransient, Classify(errors.FromStatus(http.StatusBadGateway, "")))
	assert.Equal(t, KindTransient, Classify(errors.New("dial tcp: i/o timeout")))
	assert.Equal(t, KindInvalid, Classify(errors.FromStatus(http.StatusBadRequest, "")))
}

// requestIDStarter records the request id and job id each start carried
type requestIDStarter struct {
	requestID string
	fields    []interface{}
}

func (s *requestIDStarter) StartJob(ctx context.Context, id string) error {
	s.requestID = logger.RequestIDFromContext(ctx)
	s.fields = logger.FieldsFromContext(ctx)
	return nil
}

func TestObserve_StartCarriesRequestID(t *testing.T) {
	starter := &requestIDStarter{}
	c, _ := newTestController(starter, Options{})

	require.True(t, c.Observe(jobs.NewSnapshot([]jobs.Job{jobs.New("5", jobs.StatusQueued)}, time.Now())))
	c.Wait()

	_, err := uuid.Parse(starter.requestID)
	assert.NoError(t, err, "request id should be a uuid, got %q", starter.requestID)
	assert.Contains(t, starter.fields, "5")
}
