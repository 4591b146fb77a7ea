// Package admit enforces the one-running-job rule: when a Snapshot shows no
// running job, it asks the remote API to start the oldest queued one, and
// never has more than one start request outstanding.
package admit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/jobpulse/errors"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/jobs"
)

// Starter asks the remote API to start a job
type Starter interface {
	StartJob(ctx context.Context, id string) error
}

// Refresher schedules an out-of-band poll
type Refresher interface {
	TriggerRefresh()
}

// Options configures a Controller
type Options struct {
	// Limiter caps how often starts are issued. nil means unlimited.
	Limiter *rate.Limiter

	// StartTimeout bounds each start request. 0 leaves it to the Starter.
	StartTimeout time.Duration
}

// NewStartLimiter returns a limiter allowing perMinute starts per minute,
// or nil when perMinute <= 0
func NewStartLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
}

// Stats describes admission activity since creation
type Stats struct {
	Attempts            int64     `json:"attempts" yaml:"attempts"`
	Succeeded           int64     `json:"succeeded" yaml:"succeeded"`
	Failed              int64     `json:"failed" yaml:"failed"`
	Throttled           int64     `json:"throttled" yaml:"throttled"`
	ConsecutiveFailures int64     `json:"consecutive_failures" yaml:"consecutive_failures"`
	LastJobID           string    `json:"last_job_id,omitempty" yaml:"last_job_id,omitempty"`
	LastStartedAt       time.Time `json:"last_started_at,omitempty" yaml:"last_started_at,omitempty"`
	LastError           string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Controller decides, per observed Snapshot, whether to start the next job
type Controller struct {
	starter   Starter
	refresher Refresher
	opts      Options
	logger    *zap.SugaredLogger
	admitLog  *zap.SugaredLogger
	timeNow   func() time.Time

	inFlight atomic.Bool // set while a start request is outstanding
	wg       sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New creates an admission controller
func New(starter Starter, refresher Refresher, opts Options, log *zap.SugaredLogger) *Controller {
	log = logger.OrNop(log)
	return &Controller{
		starter:   starter,
		refresher: refresher,
		opts:      opts,
		logger:    log,
		admitLog:  logger.AddAdmitSymbol(log),
		timeNow:   time.Now,
	}
}

// Next returns the job that should be started for s: nothing while any job
// is running, otherwise the first queued job in Snapshot order.
func Next(s jobs.Snapshot) (jobs.Job, bool) {
	if s.HasRunning() {
		return jobs.Job{}, false
	}
	return s.FirstQueued()
}

// Observe runs one admission decision against s. It returns true when a
// start request was issued. The request runs in the background; when it
// finishes, the guard is cleared and exactly one refresh is triggered.
func (c *Controller) Observe(s jobs.Snapshot) bool {
	if c.inFlight.Load() {
		return false
	}

	job, ok := Next(s)
	if !ok {
		return false
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}

	if c.opts.Limiter != nil && !c.opts.Limiter.Allow() {
		c.inFlight.Store(false)
		c.statsMu.Lock()
		c.stats.Throttled++
		c.statsMu.Unlock()
		c.logger.Debugw("Start throttled, waiting for next refresh", logger.FieldJobID, job.ID)
		return false
	}

	c.statsMu.Lock()
	c.stats.Attempts++
	c.stats.LastJobID = job.ID
	c.stats.LastStartedAt = c.timeNow()
	c.statsMu.Unlock()

	c.wg.Add(1)
	go c.start(job.ID)
	return true
}

// start issues the request and always releases the guard before nudging
// the poller
func (c *Controller) start(id string) {
	defer c.wg.Done()

	requestID := uuid.New().String()
	ctx := logger.WithRequestID(logger.WithJobID(context.Background(), id), requestID)
	if c.opts.StartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.StartTimeout)
		defer cancel()
	}

	begin := c.timeNow()
	err := c.call(ctx, id)
	duration := c.timeNow().Sub(begin)

	c.record(err)
	c.logResult(id, requestID, err, duration)

	c.inFlight.Store(false)
	if c.refresher != nil {
		c.refresher.TriggerRefresh()
	}
}

// call invokes the Starter, turning a panic into an error
func (c *Controller) call(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("start request panicked: %v", r)
		}
	}()
	return c.starter.StartJob(ctx, id)
}

func (c *Controller) record(err error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if err == nil {
		c.stats.Succeeded++
		c.stats.ConsecutiveFailures = 0
		c.stats.LastError = ""
		return
	}
	c.stats.Failed++
	c.stats.ConsecutiveFailures++
	c.stats.LastError = err.Error()
}

// logResult logs under the same request id the API call carried
func (c *Controller) logResult(id, requestID string, err error, duration time.Duration) {
	if err == nil {
		c.admitLog.Infow(fmt.Sprintf("Started job %s", id),
			logger.FieldJobID, id,
			logger.FieldRequestID, requestID,
			logger.FieldDurationMS, duration.Milliseconds())
		return
	}

	kind := Classify(err)
	fields := []interface{}{
		logger.FieldJobID, id,
		logger.FieldRequestID, requestID,
		logger.FieldErrorKind, kind,
		logger.FieldError, err,
		logger.FieldDurationMS, duration.Milliseconds(),
	}
	switch kind {
	case KindConflict:
		c.admitLog.Infow("Job no longer startable, re-evaluating after refresh", fields...)
	case KindNotFound:
		c.admitLog.Infow("Job disappeared before it could start", fields...)
	case KindInvalid, KindUnauthorized:
		c.admitLog.Errorw("Start request rejected, will retry after refresh", fields...)
	default:
		c.admitLog.Warnw("Failed to start job, will retry after refresh", fields...)
	}
}

// Failure kinds reported in logs
const (
	KindConflict     = "conflict"
	KindNotFound     = "not_found"
	KindUnauthorized = "unauthorized"
	KindInvalid      = "invalid_request"
	KindTransient    = "transient"
)

// Classify names the kind of a start failure. Every kind is retried on the
// next cycle; the kind only changes how loudly it is logged.
func Classify(err error) string {
	switch {
	case errors.IsConflictError(err):
		return KindConflict
	case errors.IsNotFoundError(err):
		return KindNotFound
	case errors.Is(err, errors.ErrUnauthorized):
		return KindUnauthorized
	case errors.IsTransient(err):
		return KindTransient
	default:
		return KindInvalid
	}
}

// InFlight reports whether a start request is outstanding
func (c *Controller) InFlight() bool {
	return c.inFlight.Load()
}

// Wait blocks until every issued start request has finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Stats returns a copy of the admission statistics
func (c *Controller) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}
