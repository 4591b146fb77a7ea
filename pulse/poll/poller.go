package poll

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/jobs"
)

// Source fetches the full job list from the remote API
type Source interface {
	ListJobs(ctx context.Context) ([]jobs.Job, error)
}

// Options configures a Poller
type Options struct {
	OnlyActive bool // Keep only running jobs in published snapshots
}

// Stats describes poller activity since creation
type Stats struct {
	Interval            time.Duration `json:"interval"`
	Ticks               int64         `json:"ticks"`
	Refreshes           int64         `json:"refreshes"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	LastRefreshAt       time.Time     `json:"last_refresh_at"`
	LastDuration        time.Duration `json:"last_duration"`
}

// Poller refreshes a Store from a Source, once on demand or on a recurring timer.
// Refresh failures never escape: they become the error refresh status.
type Poller struct {
	source     Source
	store      *Store
	onlyActive atomic.Bool
	logger     *zap.SugaredLogger
	pulseLog   *zap.SugaredLogger
	timeNow    func() time.Time

	mu       sync.Mutex // guards the recurring loop
	cancel   context.CancelFunc
	loopDone chan struct{}
	interval time.Duration

	inflight sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// NewPoller creates a poller writing into store
func NewPoller(source Source, store *Store, opts Options, log *zap.SugaredLogger) *Poller {
	log = logger.OrNop(log)
	p := &Poller{
		source:   source,
		store:    store,
		logger:   log,
		pulseLog: logger.AddPulseSymbol(log),
		timeNow:  time.Now,
	}
	p.onlyActive.Store(opts.OnlyActive)
	return p
}

// SetOnlyActive switches running-only filtering for subsequent refreshes
func (p *Poller) SetOnlyActive(onlyActive bool) {
	p.onlyActive.Store(onlyActive)
}

// OnlyActive reports whether refreshes keep only running jobs
func (p *Poller) OnlyActive() bool {
	return p.onlyActive.Load()
}

// Refresh fetches the job list and publishes the result. The status moves to
// loading before the fetch starts; on failure the previous Snapshot is kept.
// Results that arrive after the store is closed are discarded.
func (p *Poller) Refresh(ctx context.Context) {
	if !p.store.BeginRefresh() {
		return
	}

	requestID := uuid.New().String()
	ctx = logger.WithRequestID(ctx, requestID)

	start := p.timeNow()
	list, err := p.fetch(ctx)
	duration := p.timeNow().Sub(start)

	if err != nil {
		failures := p.recordRefresh(start, duration, false)
		if !p.store.Fail(err) {
			p.logger.Debugw("Discarding failed refresh after shutdown", logger.FieldError, err)
			return
		}
		p.pulseLog.Warnw("Job refresh failed",
			logger.FieldError, err,
			logger.FieldRequestID, requestID,
			logger.FieldFailures, failures,
			logger.FieldDurationMS, duration.Milliseconds())
		return
	}

	snapshot := jobs.NewSnapshot(list, p.timeNow())
	if p.onlyActive.Load() {
		snapshot = snapshot.OnlyRunning()
	}
	p.recordRefresh(start, duration, true)

	if !p.store.Succeed(snapshot) {
		p.logger.Debugw("Discarding refresh result after shutdown", logger.FieldCount, snapshot.Len())
		return
	}

	counts := snapshot.Counts()
	p.pulseLog.Debugw("Jobs refreshed",
		logger.FieldCount, counts.Total,
		logger.FieldQueued, counts.Queued,
		logger.FieldRunning, counts.Running,
		logger.FieldDurationMS, duration.Milliseconds())
}

// fetch calls the source, turning a panic into an error so nothing escapes Refresh
func (p *Poller) fetch(ctx context.Context) (list []jobs.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("job source panicked: %v", r)
		}
	}()

	list, err = p.source.ListJobs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch jobs")
	}
	return list, nil
}

// TriggerRefresh starts a Refresh in the background and returns immediately.
// Overlapping refreshes are allowed; the last one to finish wins. Once the
// store is closed it does nothing.
func (p *Poller) TriggerRefresh() {
	if p.store.Closed() {
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.Refresh(context.Background())
	}()
}

// Start refreshes once immediately and, when interval > 0, every interval
// until Stop. Calling Start again replaces the previous schedule.
func (p *Poller) Start(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.TriggerRefresh()

	p.statsMu.Lock()
	p.stats.Interval = interval
	p.statsMu.Unlock()

	if interval <= 0 {
		p.interval = 0
		p.pulseLog.Debugw("Poller ran single refresh, no interval configured")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.loopDone = done
	p.interval = interval

	go p.run(ctx, interval, done)
	p.pulseLog.Infow(fmt.Sprintf("Poller started, refreshing every %s", interval),
		logger.FieldInterval, interval)
}

// Stop cancels the recurring timer. In-flight refreshes are left to finish.
// Idempotent and safe to call when never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// stopLocked must be called with p.mu held
func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.loopDone
	p.cancel = nil
	p.loopDone = nil
	p.interval = 0
	p.pulseLog.Debugw("Poller stopped")
}

// Interval returns the active recurring interval, 0 when not scheduled
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Wait blocks until every background refresh has returned
func (p *Poller) Wait() {
	p.inflight.Wait()
}

// Stats returns a copy of the poller statistics
func (p *Poller) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// run is the recurring refresh loop
func (p *Poller) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.statsMu.Lock()
			p.stats.Ticks++
			p.statsMu.Unlock()

			p.TriggerRefresh()
		}
	}
}

// recordRefresh updates stats and returns the consecutive failure count
func (p *Poller) recordRefresh(at time.Time, duration time.Duration, ok bool) int64 {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.Refreshes++
	p.stats.LastRefreshAt = at
	p.stats.LastDuration = duration
	if ok {
		p.stats.ConsecutiveFailures = 0
	} else {
		p.stats.Failures++
		p.stats.ConsecutiveFailures++
	}
	return p.stats.ConsecutiveFailures
}
